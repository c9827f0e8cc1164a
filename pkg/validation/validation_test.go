package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "vcregistry/pkg/domain-errors"
)

type sample struct {
	Name      string `json:"name" validate:"notblank"`
	Key       string `json:"signing_key" validate:"required,hex0x,len=42"`
	ExpiresAt uint64 `json:"expiration_time" validate:"required"`
}

func valid() sample {
	return sample{
		Name:      "Acme",
		Key:       "0x2000000000000000000000000000000000000001",
		ExpiresAt: 1,
	}
}

func TestStruct(t *testing.T) {
	t.Run("valid struct passes", func(t *testing.T) {
		assert.NoError(t, Struct(valid()))
	})

	cases := []struct {
		name   string
		mutate func(*sample)
		msg    string
	}{
		{"blank name", func(s *sample) { s.Name = "   " }, "name is required"},
		{"missing key", func(s *sample) { s.Key = "" }, "signing_key is required"},
		{"key without prefix", func(s *sample) { s.Key = "2000000000000000000000000000000000000001ab" }, "signing_key must be 0x-prefixed hex"},
		{"key with bad digit", func(s *sample) { s.Key = "0xz000000000000000000000000000000000000001" }, "signing_key must be 0x-prefixed hex"},
		{"short key", func(s *sample) { s.Key = "0x20" }, "signing_key must be 42 characters"},
		{"zero expiry", func(s *sample) { s.ExpiresAt = 0 }, "expiration_time is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := valid()
			tc.mutate(&s)

			err := Struct(s)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}
