package token

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestSignVerifyRoundTripsForAnyPayload verifies verify(sign(p)) == p for
// arbitrary string payloads.
func TestSignVerifyRoundTripsForAnyPayload(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("sign then verify recovers the original value", prop.ForAll(
		func(value string) bool {
			s := NewSigner("a-shared-secret", time.Hour)
			tok, err := s.Sign(payload{Value: value})
			if err != nil {
				return false
			}
			var out payload
			if err := s.Verify(tok, &out); err != nil {
				return false
			}
			return out.Value == value
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestSingleByteMutationFailsVerification verifies that flipping any one
// byte of a signed token causes verification to fail.
func TestSingleByteMutationFailsVerification(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a single mutated byte is rejected", prop.ForAll(
		func(value string, mutateAt int) bool {
			s := NewSigner("a-shared-secret", time.Hour)
			tok, err := s.Sign(payload{Value: value})
			if err != nil || len(tok) == 0 {
				return true
			}
			idx := mutateAt % len(tok)
			if idx < 0 {
				idx = -idx
			}
			mutated := []byte(tok)
			orig := mutated[idx]
			mutated[idx] = flipTokenByte(orig)

			var out payload
			return s.Verify(string(mutated), &out) == ErrInvalid
		},
		gen.AnyString(),
		gen.Int(),
	))

	properties.TestingRun(t)
}

// flipTokenByte returns a byte from the base64url alphabet that differs from
// b, so the mutated token is guaranteed to differ from the signed one.
func flipTokenByte(b byte) byte {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] != b {
			return alphabet[i]
		}
	}
	return b
}
