package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Terminals generate their own keys, typically a UUID or a
// "<terminal>-<receipt>" compound. The accepted alphabet is kept narrow:
// letters, digits, hyphen and underscore.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateKey checks a key against the default maximum length.
func ValidateKey(key string) error {
	return ValidateKeyWithMaxLength(key, DefaultMaxKeyLength)
}

// ValidateKeyWithMaxLength checks that a key is present, within the length
// limit, and drawn from the accepted alphabet.
func ValidateKeyWithMaxLength(key string, maxLength int) error {
	switch {
	case key == "":
		return ErrKeyRequired
	case len(key) > maxLength:
		return ErrKeyTooLong
	case !keyPattern.MatchString(key):
		return ErrKeyInvalid
	}
	return nil
}

// ComputeFingerprint hashes the request body with SHA-256 so a retried
// submission can be compared against the original. A retry that reuses a key
// with a different payload is detected through this fingerprint.
func ComputeFingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// NormalizeKey strips surrounding whitespace from the header value.
func NormalizeKey(key string) string {
	return strings.TrimSpace(key)
}
