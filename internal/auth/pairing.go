package auth

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/skip2/go-qrcode"
)

// LoadOrCreatePasskey reads the passkey stored at path, or generates a
// fresh random one and persists it if the file does not exist. Returns
// the passkey and whether it was freshly generated (so the caller knows
// to display a pairing QR code only on first run).
func LoadOrCreatePasskey(path string) (passkey string, generated bool, err error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if pk := strings.TrimSpace(string(data)); pk != "" {
			return pk, false, nil
		}
	}

	pk, err := generatePasskey()
	if err != nil {
		return "", false, fmt.Errorf("auth: generate passkey: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", false, fmt.Errorf("auth: create passkey directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(pk+"\n"), 0600); err != nil {
		return "", false, fmt.Errorf("auth: persist passkey to %s: %w", path, err)
	}

	return pk, true, nil
}

// generatePasskey returns a base32-encoded random 160-bit passkey.
func generatePasskey() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// PrintPairingQR writes a terminal-rendered QR code encoding identifier
// and passkey to w, for a first-run pairing flow where a companion app
// scans the code instead of the user retyping the passkey.
func PrintPairingQR(w io.Writer, identifier, passkey string) error {
	payload := fmt.Sprintf("lmstudio-pair:%s:%s", identifier, passkey)
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("auth: build pairing QR code: %w", err)
	}
	fmt.Fprintln(w, qr.ToSmallString(false))
	return nil
}
