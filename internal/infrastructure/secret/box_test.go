package secret

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox_RoundTrip(t *testing.T) {
	box, err := NewBox(strings.Repeat("ab", 32))
	require.NoError(t, err)

	sealed, err := box.Seal("123456:telegram-bot-token")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "telegram-bot-token")

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "123456:telegram-bot-token", opened)
}

func TestBox_NonceVaries(t *testing.T) {
	box := NewDevelopmentBox("x")
	a, err := box.Seal("same")
	require.NoError(t, err)
	b, err := box.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBox_Empty(t *testing.T) {
	box := NewDevelopmentBox("x")
	sealed, err := box.Seal("")
	require.NoError(t, err)
	assert.Empty(t, sealed)
	opened, err := box.Open("")
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestBox_WrongKey(t *testing.T) {
	sealed, err := NewDevelopmentBox("a").Seal("secret")
	require.NoError(t, err)

	_, err = NewDevelopmentBox("b").Open(sealed)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestBox_Garbage(t *testing.T) {
	box := NewDevelopmentBox("a")
	_, err := box.Open("!!not base64!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
	_, err = box.Open("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestNewBox_KeyFormats(t *testing.T) {
	_, err := NewBox(strings.Repeat("k", 32))
	assert.NoError(t, err)
	_, err = NewBox("short")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = NewBox(strings.Repeat("zz", 32))
	assert.ErrorIs(t, err, ErrInvalidKey)
}
