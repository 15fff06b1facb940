package jwtutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("secret", "docchat-cli", time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "docchat-cli", claims.Subject)
}

func TestParse_WrongSecret(t *testing.T) {
	token, err := GenerateToken("secret", "cli", time.Minute)
	require.NoError(t, err)

	_, err = ParseToken("other", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Expired(t *testing.T) {
	token, err := GenerateToken("secret", "cli", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken("secret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerate_RequiresSecret(t *testing.T) {
	_, err := GenerateToken("", "cli", time.Minute)
	assert.Error(t, err)
}
