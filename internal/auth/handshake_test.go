package auth

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"
)

func TestPerform_SendsRequestAndAcceptsOK(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		done <- Perform(client, bufio.NewReader(client), "lmsclient", "s3cr3t", nil)
	}()

	reader := bufio.NewReader(server)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.AuthVersion != 1 || req.ClientIdentifier != "lmsclient" || req.ClientPasskey != "s3cr3t" {
		t.Fatalf("unexpected request: %+v", req)
	}

	resp, _ := json.Marshal(Response{OK: true})
	server.Write(append(resp, '\n'))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Perform returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Perform to return")
	}
}

func TestPerform_RejectedHandshakeReturnsError(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		done <- Perform(client, bufio.NewReader(client), "lmsclient", "wrong", nil)
	}()

	reader := bufio.NewReader(server)
	if _, err := reader.ReadBytes('\n'); err != nil {
		t.Fatalf("server read: %v", err)
	}
	resp, _ := json.Marshal(Response{OK: false, Error: "bad passkey"})
	server.Write(append(resp, '\n'))

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error")
		}
		var authErr *ErrAuthFailed
		if !isAuthFailed(err, &authErr) {
			t.Fatalf("expected *ErrAuthFailed, got %T: %v", err, err)
		}
		if authErr.Reason != "bad passkey" {
			t.Errorf("Reason = %q, want %q", authErr.Reason, "bad passkey")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Perform to return")
	}
}

func isAuthFailed(err error, target **ErrAuthFailed) bool {
	if e, ok := err.(*ErrAuthFailed); ok {
		*target = e
		return true
	}
	return false
}

func TestDigest_DoesNotContainPasskey(t *testing.T) {
	d := digest("super-secret-passkey")
	if d == "super-secret-passkey" {
		t.Fatal("digest must not equal the raw passkey")
	}
	if len(d) != 16 {
		t.Errorf("digest length = %d, want 16 hex chars for 8 bytes", len(d))
	}
}
