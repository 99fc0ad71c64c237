package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	token, err := issuer.GenerateJWT("user-1")
	require.NoError(t, err)

	sub, err := issuer.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestValidateJWT_WrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret", time.Hour).GenerateJWT("user-1")
	require.NoError(t, err)

	_, err = NewTokenIssuer("other", time.Hour).ValidateJWT(token)
	assert.Error(t, err)
}

func TestValidateJWT_Expired(t *testing.T) {
	token, err := NewTokenIssuer("secret", -time.Hour).GenerateJWT("user-1")
	require.NoError(t, err)

	// a negative ttl falls back to the default, so build an expired one directly
	issuer := &TokenIssuer{secret: []byte("secret"), ttl: -time.Minute}
	expired, err := issuer.GenerateJWT("user-1")
	require.NoError(t, err)

	_, err = issuer.ValidateJWT(expired)
	assert.Error(t, err)

	_, err = issuer.ValidateJWT(token)
	assert.NoError(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)

	assert.True(t, CheckPasswordHash("hunter22", hash))
	assert.False(t, CheckPasswordHash("hunter23", hash))
}
