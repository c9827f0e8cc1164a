package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "vcregistry/pkg/domain-errors"
)

func TestParseAddress(t *testing.T) {
	t.Run("accepts checksummed and lower case hex", func(t *testing.T) {
		a, err := ParseAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
		require.NoError(t, err)
		b, err := ParseAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", a.String())
	})

	t.Run("null address parses and reports nil", func(t *testing.T) {
		a, err := ParseAddress("0x0000000000000000000000000000000000000000")
		require.NoError(t, err)
		assert.True(t, a.IsNil())
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		for _, in := range []string{"", "0x1234", "not-an-address"} {
			_, err := ParseAddress(in)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), in)
		}
	})
}

func TestParseVerificationID(t *testing.T) {
	const raw = "0x8f5b3c1d2e4a6b7c8d9e0f1a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e"
	id, err := ParseVerificationID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, id.String())
	assert.False(t, id.IsNil())

	_, err = ParseVerificationID("0xabc")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestParseLabel(t *testing.T) {
	t.Run("text is right padded", func(t *testing.T) {
		l, err := ParseLabel("Acme KYC")
		require.NoError(t, err)
		assert.Equal(t, "Acme KYC", l.String())
		assert.Equal(t, byte(0), l[31])
	})

	t.Run("hex form round trips", func(t *testing.T) {
		l, err := ParseLabel("Acme KYC")
		require.NoError(t, err)
		back, err := ParseLabel(l.Hex())
		require.NoError(t, err)
		assert.Equal(t, l, back)
	})

	t.Run("empty text is the absent label", func(t *testing.T) {
		l, err := ParseLabel("")
		require.NoError(t, err)
		assert.True(t, l.IsNil())
	})

	t.Run("rejects text longer than 32 bytes", func(t *testing.T) {
		_, err := ParseLabel("this label is definitely longer than thirty-two bytes")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
