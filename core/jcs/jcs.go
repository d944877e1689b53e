// Package jcs provides the canonical serialization and hashing that every
// deterministic identity in the pipeline (fingerprints, ruleset digests,
// content hashes) is built on.
package jcs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// CanonicalizeJSON returns the RFC 8785 (JCS) canonical form of JSON input.
func CanonicalizeJSON(input []byte) ([]byte, error) {
	return jcs.Transform(input)
}

// Canonicalize serializes a Go value to RFC 8785 canonical JSON: keys
// sorted, fixed separators, UTF-8, timestamps as RFC 3339 strings.
func Canonicalize(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// Fingerprint canonicalizes a value and returns its sha256 hex digest.
// Equal values always produce equal fingerprints regardless of map or
// struct field ordering in the serialized form.
func Fingerprint(value any) (string, error) {
	canonical, err := Canonicalize(value)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// DigestText returns the sha256 hex digest of a text's UTF-8 bytes. Used
// for per-item content hashes when no precomputed hash exists.
func DigestText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
