package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("test-secret", 30)

	token, err := svc.GenerateToken("user-42")
	require.NoError(t, err)

	userID, err := svc.ParseUserID(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewService("secret-a", 30).GenerateToken("user-42")
	require.NoError(t, err)

	_, err = NewService("secret-b", 30).ParseUserID(token)
	assert.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	svc := NewService("test-secret", -1)
	token, err := svc.GenerateToken("user-42")
	require.NoError(t, err)

	_, err = svc.ParseUserID(token)
	assert.Error(t, err)
}

func TestTokenGarbage(t *testing.T) {
	_, err := NewService("test-secret", 30).ParseUserID("not.a.token")
	assert.Error(t, err)
}
