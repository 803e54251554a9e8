// Package config handles configuration loading for the lmsclient demo CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// searchPathsFunc is overridable in tests so they don't pick up real
// config files sitting on a developer or CI machine.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./lmsclient.yaml, ~/.config/lmsclient/config.yaml, /etc/lmsclient/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"lmsclient.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "lmsclient", "config.yaml"))
	}

	paths = append(paths, "/etc/lmsclient/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches the search path and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// ServerConfig describes how to reach the local application server.
type ServerConfig struct {
	// Transport selects the Frame Transport implementation: "websocket"
	// (default), "ipc", or "mqtt".
	Transport string `yaml:"transport"`
	// Host is the server's hostname or IP.
	Host string `yaml:"host"`
	// Port is the server's listen port, used when Transport is "websocket".
	Port int `yaml:"port"`
	// Path is the websocket upgrade path.
	Path string `yaml:"path"`
	// Socket is the Unix domain socket path, used when Transport is "ipc".
	Socket string `yaml:"socket"`
	// Broker is the MQTT broker URL, used when Transport is "mqtt".
	Broker string `yaml:"broker"`
	// ProxyURL, if set, dials the websocket transport through a SOCKS5
	// proxy (e.g. "socks5://localhost:1080").
	ProxyURL string `yaml:"proxy_url"`
}

// AuthConfig describes the client identity used in the auth handshake
// collaborator (§6.3). The core client port never sees these values.
type AuthConfig struct {
	// ClientIdentifier names this client to the server.
	ClientIdentifier string `yaml:"client_identifier"`
	// PasskeyFile stores the generated/paired passkey, persisted across
	// runs so re-pairing isn't required every launch.
	PasskeyFile string `yaml:"passkey_file"`
}

// DebugServerConfig configures the local diagnostics HTTP page.
type DebugServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Config holds all lmsclient configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	DebugServer DebugServerConfig `yaml:"debug_server"`
	LogLevel    string            `yaml:"log_level"`
	VerboseErrs bool              `yaml:"verbose_errors"`
}

// Default returns a Config with sensible defaults for talking to a
// locally running server.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport: "websocket",
			Host:      "127.0.0.1",
			Port:      1234,
			Path:      "/llm_chat",
		},
		Auth: AuthConfig{
			ClientIdentifier: "lmsclient",
			PasskeyFile:      "~/.cache/lmsclient/passkey",
		},
		DebugServer: DebugServerConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8337",
		},
		LogLevel:    "info",
		VerboseErrs: true,
	}
}

// Load reads and parses a YAML config file at path, expanding ${VAR}
// environment variable references (so secrets like passkeys can be
// injected by the environment rather than committed to disk), and
// filling in defaults for anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-valued fields that Default() sets but a
// partial user config may have omitted.
func (c *Config) applyDefaults() {
	if c.Server.Transport == "" {
		c.Server.Transport = "websocket"
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 1234
	}
	if c.Auth.ClientIdentifier == "" {
		c.Auth.ClientIdentifier = "lmsclient"
	}
	if c.DebugServer.Listen == "" {
		c.DebugServer.Listen = "127.0.0.1:8337"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "websocket":
		if c.Server.Host == "" {
			return fmt.Errorf("server.host must be set for the websocket transport")
		}
	case "ipc":
		if c.Server.Socket == "" {
			return fmt.Errorf("server.socket must be set for the ipc transport")
		}
	case "mqtt":
		if c.Server.Broker == "" {
			return fmt.Errorf("server.broker must be set for the mqtt transport")
		}
	default:
		return fmt.Errorf("server.transport must be one of websocket, ipc, mqtt; got %q", c.Server.Transport)
	}

	if c.Auth.ClientIdentifier == "" {
		return fmt.Errorf("auth.client_identifier must not be empty")
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}
