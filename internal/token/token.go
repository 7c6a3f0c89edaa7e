// Package token implements the Resumable Token (C2): an HMAC-signed,
// base64url-encoded carrier of a JSON payload, sufficient to recreate a run
// statelessly across HTTP requests (spec.md §3, §4.5).
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalid is returned for any malformed, tampered, or expired token,
// surfaced by the HTTP layer as a 400 per spec.md §7 ("TokenInvalid").
var ErrInvalid = errors.New("token: invalid or expired")

// envelope is the signed structure: the caller's payload plus an issued-at
// timestamp used to enforce TTL at verification time (spec.md §9, Open
// Question 1, resolved with a 15-minute default TTL).
type envelope struct {
	Payload   json.RawMessage `json:"payload"`
	IssuedAt  int64           `json:"iat"`
}

// Signer signs and verifies resumable tokens using a single shared secret.
// A single Signer is constructed at process start from config.Config's
// TokenSecret/TokenTTL.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner builds a Signer from the process secret and TTL.
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// Sign canonicalizes payload as JSON, wraps it with an issued-at timestamp,
// and returns a base64url token carrying an HMAC-SHA256 signature.
func (s *Signer) Sign(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("token: marshal payload: %w", err)
	}
	env := envelope{Payload: raw, IssuedAt: time.Now().Unix()}
	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("token: marshal envelope: %w", err)
	}
	mac := s.sign(body)
	combined := append(body, append([]byte{0}, mac...)...)
	return base64.RawURLEncoding.EncodeToString(combined), nil
}

// Verify decodes and checks a token's signature and TTL, then unmarshals
// its payload into out. Any failure returns ErrInvalid; the caller never
// sees the specific cause, matching the 400-without-detail behavior spec.md
// §7 describes for TokenInvalid.
func (s *Signer) Verify(tok string, out any) error {
	combined, err := base64.RawURLEncoding.Strict().DecodeString(tok)
	if err != nil {
		return ErrInvalid
	}
	sep := indexZero(combined)
	if sep < 0 {
		return ErrInvalid
	}
	body, mac := combined[:sep], combined[sep+1:]

	expected := s.sign(body)
	if !hmac.Equal(mac, expected) {
		return ErrInvalid
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ErrInvalid
	}
	if s.ttl > 0 && time.Since(time.Unix(env.IssuedAt, 0)) > s.ttl {
		return ErrInvalid
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return ErrInvalid
	}
	return nil
}

func (s *Signer) sign(body []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return mac.Sum(nil)
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

// constantTimeEqual compares two raw token strings in constant time without
// going through Verify. Nothing in this package calls it.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
