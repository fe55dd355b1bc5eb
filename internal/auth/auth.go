// Package auth implements the signed-request envelope: every mutating
// call carries a timestamp and an HMAC-SHA256 signature over the
// canonical JSON form of its payload, proving it originated from a
// trusted caller within a freshness window.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultMaxAge is the freshness window for signed payloads.
const DefaultMaxAge = 300 * time.Second

// Signer signs and verifies request payloads with a shared secret.
// Verification is a pure function of the payload, the signature and the
// clock; it has no side effects.
type Signer struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// New creates a Signer for the given shared secret. A non-positive
// maxAge falls back to DefaultMaxAge.
func New(secret string, maxAge time.Duration) *Signer {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Signer{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Sign computes the hex HMAC-SHA256 signature of the payload's
// canonical JSON form. Any "signature" entry already present is
// excluded from the signed bytes.
func (s *Signer) Sign(payload map[string]any) (string, error) {
	data, err := canonical(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks the payload's timestamp freshness and signature.
// A payload with a missing or stale timestamp is rejected as expired.
// The comparison is constant-time.
func (s *Signer) Verify(payload map[string]any, signature string) bool {
	ts, ok := timestampOf(payload)
	if !ok {
		return false
	}
	if s.now().Sub(ts) > s.maxAge {
		return false
	}

	expected, err := s.Sign(payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(expected))
}

// canonical serializes the payload minus its signature field with
// sorted keys and compact separators. encoding/json sorts map keys and
// emits no whitespace, matching the canonical form the callers produce.
func canonical(payload map[string]any) ([]byte, error) {
	trimmed := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == "signature" {
			continue
		}
		trimmed[k] = v
	}
	return json.Marshal(trimmed)
}

// timestampOf extracts the payload timestamp, accepting the numeric
// forms a decoded JSON payload can carry.
func timestampOf(payload map[string]any) (time.Time, bool) {
	v, ok := payload["timestamp"]
	if !ok {
		return time.Time{}, false
	}

	switch ts := v.(type) {
	case float64:
		sec := int64(ts)
		nsec := int64((ts - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec), true
	case int64:
		return time.Unix(ts, 0), true
	case int:
		return time.Unix(int64(ts), 0), true
	case json.Number:
		f, err := ts.Float64()
		if err != nil {
			return time.Time{}, false
		}
		sec := int64(f)
		nsec := int64((f - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec), true
	default:
		return time.Time{}, false
	}
}
