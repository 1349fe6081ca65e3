package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	m := NewManager("test-secret", time.Hour, "messaging-test")

	token, err := m.GenerateToken("user-1", "alice")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "messaging-test", claims.Issuer)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	m := NewManager("secret-a", time.Hour, "messaging-test")
	other := NewManager("secret-b", time.Hour, "messaging-test")

	token, err := m.GenerateToken("user-1", "alice")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	m := NewManager("test-secret", -time.Minute, "messaging-test")

	token, err := m.GenerateToken("user-1", "alice")
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := NewManager("test-secret", time.Hour, "messaging-test")

	_, err := m.ValidateToken("not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
