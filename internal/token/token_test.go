package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Value string `json:"value"`
}

func TestSignVerifyRoundTrip(t *testing.T) {
	s := NewSigner("secret", time.Hour)
	tok, err := s.Sign(payload{Value: "hello"})
	require.NoError(t, err)

	var out payload
	require.NoError(t, s.Verify(tok, &out))
	assert.Equal(t, "hello", out.Value)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	s := NewSigner("secret", time.Hour)
	tok, err := s.Sign(payload{Value: "hello"})
	require.NoError(t, err)

	tampered := tok[:len(tok)-1] + "x"
	var out payload
	err = s.Verify(tampered, &out)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer := NewSigner("secret-a", time.Hour)
	tok, err := signer.Sign(payload{Value: "hello"})
	require.NoError(t, err)

	other := NewSigner("secret-b", time.Hour)
	var out payload
	assert.ErrorIs(t, other.Verify(tok, &out), ErrInvalid)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	s := NewSigner("secret", -time.Second)
	tok, err := s.Sign(payload{Value: "hello"})
	require.NoError(t, err)

	var out payload
	assert.ErrorIs(t, s.Verify(tok, &out), ErrInvalid)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	s := NewSigner("secret", time.Hour)
	var out payload
	assert.ErrorIs(t, s.Verify("not-a-token", &out), ErrInvalid)
}
