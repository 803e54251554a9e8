package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/lmsclient.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	dir := t.TempDir()
	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{filepath.Join(dir, "lmsclient.yaml")}
	}
	defer func() { searchPathsFunc = orig }()

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lmsclient.yaml")
	os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0600)

	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{path}
	}
	defer func() { searchPathsFunc = orig }()

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != path {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, path)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lmsclient.yaml")
	os.WriteFile(path, []byte("auth:\n  client_identifier: ${LMSCLIENT_TEST_ID}\n"), 0600)
	os.Setenv("LMSCLIENT_TEST_ID", "my-client")
	defer os.Unsetenv("LMSCLIENT_TEST_ID")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Auth.ClientIdentifier != "my-client" {
		t.Errorf("client_identifier = %q, want %q", cfg.Auth.ClientIdentifier, "my-client")
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lmsclient.yaml")
	os.WriteFile(path, []byte("server:\n  transport: websocket\n  host: 192.168.1.50\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Port != 1234 {
		t.Errorf("Server.Port = %d, want 1234 (default)", cfg.Server.Port)
	}
	if cfg.Auth.ClientIdentifier != "lmsclient" {
		t.Errorf("Auth.ClientIdentifier = %q, want default %q", cfg.Auth.ClientIdentifier, "lmsclient")
	}
}

func TestValidate_UnknownTransport(t *testing.T) {
	cfg := Default()
	cfg.Server.Transport = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown transport")
	}
}

func TestValidate_IPCRequiresSocket(t *testing.T) {
	cfg := Default()
	cfg.Server.Transport = "ipc"
	cfg.Server.Socket = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for ipc transport without socket")
	}

	cfg.Server.Socket = "/tmp/lms.sock"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestValidate_MQTTRequiresBroker(t *testing.T) {
	cfg := Default()
	cfg.Server.Transport = "mqtt"
	cfg.Server.Broker = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for mqtt transport without broker")
	}
}

func TestValidate_EmptyClientIdentifier(t *testing.T) {
	cfg := Default()
	cfg.Auth.ClientIdentifier = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for empty client identifier")
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "shout"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown log level")
	}
}

func TestParseLogLevel_Trace(t *testing.T) {
	lvl, err := ParseLogLevel("trace")
	if err != nil {
		t.Fatalf("ParseLogLevel(trace) error: %v", err)
	}
	if lvl != LevelTrace {
		t.Errorf("ParseLogLevel(trace) = %v, want %v", lvl, LevelTrace)
	}
}
