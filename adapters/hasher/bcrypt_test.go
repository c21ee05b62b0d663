package hasher

import (
	"testing"

	"github.com/layer-3/gatekeeper/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcrypt(t *testing.T) {
	h := NewBcrypt(bcrypt.MinCost)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	t.Run("match", func(t *testing.T) {
		assert.NoError(t, h.Compare(hash, "correct horse"))
	})

	t.Run("mismatch", func(t *testing.T) {
		assert.ErrorIs(t, h.Compare(hash, "battery staple"), core.ErrInvalidCredentials)
	})

	t.Run("corrupt hash", func(t *testing.T) {
		err := h.Compare("not-a-hash", "correct horse")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, core.ErrInvalidCredentials)
	})

	t.Run("empty password", func(t *testing.T) {
		_, err := h.Hash("")
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})
}

func TestNewBcryptClampsCost(t *testing.T) {
	assert.Equal(t, DefaultCost, NewBcrypt(0).cost)
	assert.Equal(t, DefaultCost, NewBcrypt(bcrypt.MaxCost+1).cost)
	assert.Equal(t, bcrypt.MinCost, NewBcrypt(bcrypt.MinCost).cost)
}
