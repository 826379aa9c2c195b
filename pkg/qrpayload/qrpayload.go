// Package qrpayload encodes and decodes the small token carried inside a
// "scan to sign in" QR code. The payload is deliberately tiny: a type tag so
// scanners can tell a login request apart from any other QR content, and the
// session identifier that correlates the two devices.
package qrpayload

import (
	"bytes"
	"encoding/json"
	"errors"
	"image/png"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// TypeTag marks a payload as a cross-device login request.
const TypeTag = "qr_login"

// ErrMalformed reports a scanned payload that is not a login-request token.
var ErrMalformed = errors.New("qrpayload: not a login request payload")

type payload struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// Encode serializes a session id into the scannable payload string.
func Encode(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrMalformed
	}

	b, err := json.Marshal(payload{Type: TypeTag, SessionID: sessionID})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses a scanned payload and returns the session id it carries.
func Decode(raw string) (string, error) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return "", ErrMalformed
	}
	if p.Type != TypeTag || strings.TrimSpace(p.SessionID) == "" {
		return "", ErrMalformed
	}
	return p.SessionID, nil
}

// RenderPNG renders the payload as a square QR code PNG of the given pixel
// size. Medium error correction matches what phone cameras handle well at
// on-screen sizes.
func RenderPNG(raw string, size int) ([]byte, error) {
	code, err := qr.Encode(raw, qr.M, qr.Auto)
	if err != nil {
		return nil, err
	}

	code, err = barcode.Scale(code, size, size)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
