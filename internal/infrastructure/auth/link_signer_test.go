package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkSigner_SignVerify(t *testing.T) {
	s := NewLinkSigner("signing-secret")

	token, err := s.Sign(7, 123)
	require.NoError(t, err)
	assert.True(t, s.WellFormed(token))
	assert.NoError(t, s.Verify(token, 7, 123))

	// legacy Telegram callback data must fit 64 bytes
	assert.LessOrEqual(t, len("approve:"+token), 64)
}

func TestLinkSigner_RejectsOtherTenantOrOrder(t *testing.T) {
	s := NewLinkSigner("signing-secret")
	token, err := s.Sign(7, 123)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Verify(token, 8, 123), ErrMalformedLinkToken)
	assert.ErrorIs(t, s.Verify(token, 7, 124), ErrMalformedLinkToken)
}

func TestLinkSigner_RejectsOtherSecret(t *testing.T) {
	token, err := NewLinkSigner("a").Sign(1, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, NewLinkSigner("b").Verify(token, 1, 1), ErrMalformedLinkToken)
}

func TestLinkSigner_Malformed(t *testing.T) {
	s := NewLinkSigner("signing-secret")
	for _, tok := range []string{"", "abc", ".", "abc.", ".abc", "abc.def"} {
		assert.ErrorIs(t, s.Verify(tok, 1, 1), ErrMalformedLinkToken, tok)
		assert.False(t, s.WellFormed(tok), tok)
	}
}

func TestLinkSigner_UniqueTokens(t *testing.T) {
	s := NewLinkSigner("signing-secret")
	a, err := s.Sign(1, 1)
	require.NoError(t, err)
	b, err := s.Sign(1, 1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
