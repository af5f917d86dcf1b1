package llmclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerifyBearerToken(t *testing.T) {
	token, secret, err := mintBearerToken(time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Len(t, secret, 32)

	require.NoError(t, verifyBearerToken(token, secret))
}

func TestVerifyBearerTokenRejectsWrongSecret(t *testing.T) {
	token, _, err := mintBearerToken(time.Minute)
	require.NoError(t, err)

	wrongSecret := make([]byte, 32)
	assert.Error(t, verifyBearerToken(token, wrongSecret))
}

func TestVerifyBearerTokenRejectsExpired(t *testing.T) {
	token, secret, err := mintBearerToken(-time.Second)
	require.NoError(t, err)

	assert.Error(t, verifyBearerToken(token, secret))
}
