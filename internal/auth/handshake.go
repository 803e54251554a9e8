// Package auth implements the demo CLI's auth handshake collaborator
// (§6.3): a first message exchanged over the raw connection before any
// Frame is ever sent, authenticating the client to the local application
// server. The Client Port itself never sees this exchange — it begins
// multiplexing only once the handshake collaborator hands it an
// already-authenticated connection, exactly as §6.3 specifies.
//
// Grounded on the auth half of the teacher's
// internal/homeassistant/websocket.go Connect (send a credential-bearing
// first message, read back an ok/invalid reply) and on
// internal/mqtt/instance.go's on-disk, generate-once identifier pattern.
package auth

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/crypto/blake2b"
)

// Request is the first message a client sends on a freshly dialed
// connection, before the Client Port is constructed over it.
type Request struct {
	AuthVersion      int    `json:"authVersion"`
	ClientIdentifier string `json:"clientIdentifier"`
	ClientPasskey    string `json:"clientPasskey"`
}

// Response is the server's reply to a Request.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ErrAuthFailed is returned when the server rejects the handshake.
type ErrAuthFailed struct {
	Reason string
}

func (e *ErrAuthFailed) Error() string {
	if e.Reason == "" {
		return "auth: handshake rejected"
	}
	return fmt.Sprintf("auth: handshake rejected: %s", e.Reason)
}

// Perform writes a Request to conn and blocks for the matching Response,
// reading it from reader rather than wrapping conn in a reader of its
// own. The caller must keep using that same *bufio.Reader (e.g. hand it
// to transport.NewIPC) for everything read from conn afterward — the
// server is free to write protocol traffic immediately after the
// handshake response, and a second, independent reader layered over the
// same conn would silently swallow whatever that first reader had
// already buffered past the response's newline.
//
// The passkey itself is never logged; only its blake2b digest is, so a
// captured debug log can't be replayed as a credential.
func Perform(conn io.Writer, reader *bufio.Reader, identifier, passkey string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	req := Request{AuthVersion: 1, ClientIdentifier: identifier, ClientPasskey: passkey}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("auth: encode handshake request: %w", err)
	}

	logger.Info("sending auth handshake", "clientIdentifier", identifier, "passkeyDigest", digest(passkey))
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("auth: write handshake request: %w", err)
	}

	line, err := reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("auth: read handshake response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("auth: decode handshake response: %w", err)
	}
	if !resp.OK {
		return &ErrAuthFailed{Reason: resp.Error}
	}

	logger.Info("auth handshake accepted", "clientIdentifier", identifier)
	return nil
}

// digest returns the first 8 bytes of the blake2b-256 digest of passkey,
// hex-encoded (16 characters), safe to place in a log line in place of
// the passkey itself.
func digest(passkey string) string {
	sum := blake2b.Sum256([]byte(passkey))
	return fmt.Sprintf("%x", sum[:8])
}
