// Package totp implements the time-based one-time password engine used for
// second-factor verification. It is a thin, deterministic layer over
// github.com/pquerna/otp pinned to the parameters every authenticator app
// expects: 30 second period, 6 digits, HMAC-SHA1.
package totp

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// SecretBytes is the entropy of a generated secret. 20 bytes keeps the
	// full HMAC-SHA1 block and satisfies the RFC 4226 minimum of 160 bits.
	SecretBytes = 20

	// Period is the counter step in seconds.
	Period = 30

	// Digits in a generated code.
	Digits = 6

	// DefaultWindow tolerates one step of clock drift in either direction.
	DefaultWindow = 1
)

var (
	// ErrInvalidSecret reports a secret that is not valid base32.
	ErrInvalidSecret = errors.New("totp: invalid secret")

	// ErrInvalidCodeFormat reports a candidate code that is not exactly six
	// digits. Callers treat it the same as a failed validation.
	ErrInvalidCodeFormat = errors.New("totp: code must be exactly 6 digits")
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a fresh base32-encoded secret from the CSPRNG.
func GenerateSecret() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("totp: generate secret: %w", err)
	}
	return b32.EncodeToString(buf), nil
}

// CodeAt derives the 6-digit code for the counter containing t. Two calls
// with the same secret and time always return the same code.
func CodeAt(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, t, validateOpts(0))
	if err != nil {
		return "", mapSecretErr(err)
	}
	return code, nil
}

// Validate reports whether code matches the secret for any counter within
// window steps of t. It performs no replay tracking; a code that was valid a
// moment ago is valid again within the same window.
func Validate(secret, code string, t time.Time, window uint) (bool, error) {
	if !isSixDigits(code) {
		return false, ErrInvalidCodeFormat
	}

	ok, err := totp.ValidateCustom(code, secret, t, validateOpts(window))
	if err != nil {
		return false, mapSecretErr(err)
	}
	return ok, nil
}

// Enrollment renders the provisioning material for an authenticator app.
type Enrollment struct {
	Secret string
	URL    string
	QRPNG  []byte
}

// NewEnrollment builds the otpauth:// URL and QR image for a secret so the
// user can enroll a device. The secret must already be base32.
func NewEnrollment(issuer, account, secret string) (Enrollment, error) {
	raw, err := b32.DecodeString(secret)
	if err != nil {
		return Enrollment{}, ErrInvalidSecret
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Secret:      raw,
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("totp: build provisioning key: %w", err)
	}

	img, err := key.Image(256, 256)
	if err != nil {
		return Enrollment{}, fmt.Errorf("totp: render QR image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Enrollment{}, fmt.Errorf("totp: encode QR png: %w", err)
	}

	return Enrollment{
		Secret: key.Secret(),
		URL:    key.URL(),
		QRPNG:  buf.Bytes(),
	}, nil
}

func validateOpts(window uint) totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    Period,
		Skew:      window,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func isSixDigits(code string) bool {
	if len(code) != Digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func mapSecretErr(err error) error {
	if errors.Is(err, otp.ErrValidateSecretInvalidBase32) {
		return ErrInvalidSecret
	}
	return err
}
