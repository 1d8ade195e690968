package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	m, err := NewTokenManager("s3cret", "purchase-approval", time.Hour)
	require.NoError(t, err)

	token, err := m.GenerateToken(UserSession{ID: 42, Email: "a@school.test", Roles: []string{"PURCHASING"}})
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.User.ID)
	assert.True(t, claims.User.HasRole("PURCHASING"))
	assert.False(t, claims.User.HasRole("CEO"))
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_Rejects(t *testing.T) {
	m, err := NewTokenManager("s3cret", "purchase-approval", time.Hour)
	require.NoError(t, err)
	other, err := NewTokenManager("different", "purchase-approval", time.Hour)
	require.NoError(t, err)
	expired := &TokenManager{secret: []byte("s3cret"), issuer: "purchase-approval", ttl: -time.Hour}

	foreign, err := other.GenerateToken(UserSession{ID: 1})
	require.NoError(t, err)
	_, err = m.ValidateToken(foreign)
	assert.Error(t, err)

	anonymous, err := m.GenerateToken(UserSession{})
	require.NoError(t, err)
	_, err = m.ValidateToken(anonymous)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("not-a-token")
	assert.Error(t, err)

	stale, err := expired.GenerateToken(UserSession{ID: 1})
	require.NoError(t, err)
	_, err = m.ValidateToken(stale)
	assert.Error(t, err)
}

func TestNewTokenManager_RequiresSecret(t *testing.T) {
	_, err := NewTokenManager("", "", 0)
	assert.ErrorIs(t, err, ErrMissingSecret)
}
