// Package signature computes and verifies GitHub-style HMAC webhook signatures.
package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"strings"
)

// Header names and prefixes used by GitHub webhook deliveries.
const (
	HeaderSHA1   = "X-Hub-Signature"
	HeaderSHA256 = "X-Hub-Signature-256"

	PrefixSHA1   = "sha1="
	PrefixSHA256 = "sha256="
)

var (
	// ErrSecretRequired is returned when no signing secret is configured.
	ErrSecretRequired = errors.New("signing secret is required")
	// ErrSignatureMissing is returned when a delivery carries no signature.
	ErrSignatureMissing = errors.New("signature is missing")
	// ErrSignatureMismatch is returned when a signature does not match the payload.
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Signer signs payloads with a shared secret.
type Signer struct {
	secret []byte
}

// New creates a Signer. The secret is copied.
func New(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrSecretRequired
	}
	return &Signer{secret: append([]byte(nil), secret...)}, nil
}

// Sign returns the lowercase hex HMAC-SHA1 of payload.
func (s *Signer) Sign(payload []byte) string {
	return compute(sha1.New, s.secret, payload)
}

// Sign256 returns the lowercase hex HMAC-SHA256 of payload.
func (s *Signer) Sign256(payload []byte) string {
	return compute(sha256.New, s.secret, payload)
}

// Header formats a SHA1 signature for the X-Hub-Signature header.
func Header(sig string) string {
	return PrefixSHA1 + sig
}

// Header256 formats a SHA256 signature for the X-Hub-Signature-256 header.
func Header256(sig string) string {
	return PrefixSHA256 + sig
}

// Verify checks a signature header value against payload.
// Accepts "sha1=<hex>", "sha256=<hex>" or bare hex; bare hex is treated as
// SHA256 when it is 64 characters long and SHA1 otherwise.
func Verify(secret, payload []byte, header string) error {
	if len(secret) == 0 {
		return ErrSecretRequired
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrSignatureMissing
	}

	newHash := sha1.New
	value := header
	switch {
	case strings.HasPrefix(header, PrefixSHA256):
		newHash = sha256.New
		value = strings.TrimPrefix(header, PrefixSHA256)
	case strings.HasPrefix(header, PrefixSHA1):
		value = strings.TrimPrefix(header, PrefixSHA1)
	case len(header) == hex.EncodedLen(sha256.Size):
		newHash = sha256.New
	}

	actual, err := hex.DecodeString(value)
	if err != nil {
		return ErrSignatureMismatch
	}

	mac := hmac.New(newHash, secret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), actual) {
		return ErrSignatureMismatch
	}
	return nil
}

func compute(newHash func() hash.Hash, secret, payload []byte) string {
	mac := hmac.New(newHash, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
