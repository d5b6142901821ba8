package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	token, err := tm.GenerateAccessToken(42, "renter@example.com", []string{"renter"})
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int32(42), claims.UserID)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.Equal(t, "42", claims.Subject)

	t.Run("Wrong secret", func(t *testing.T) {
		other := NewTokenManager("other-secret", time.Hour)
		_, err := other.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Expired", func(t *testing.T) {
		m := NewTokenManager("test-secret", time.Minute).(*tokenManager)
		m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		old, err := m.GenerateAccessToken(1, "", nil)
		require.NoError(t, err)
		_, err = tm.ValidateToken(old)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := tm.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
