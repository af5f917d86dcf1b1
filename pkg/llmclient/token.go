package llmclient

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/whytchat/core/pkg/coreerr"
)

// mintBearerToken generates 32 random bytes as the subprocess's signing
// secret, then mints a short-lived HS256 token over those bytes. The
// spawned model server is handed the signed token (not the raw secret),
// giving it a structured, expiring credential instead of a bare opaque
// string.
func mintBearerToken(ttl time.Duration) (token string, secret []byte, err error) {
	secret = make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", nil, coreerr.Wrap(coreerr.StartupFailed, "generate bearer secret", err)
	}

	claims := jwt.RegisteredClaims{
		Subject:   "whytchat-orchestration-core",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		ID:        hex.EncodeToString(secret[:8]),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", nil, coreerr.Wrap(coreerr.StartupFailed, "sign bearer token", err)
	}

	return signed, secret, nil
}

// verifyBearerToken checks that token was signed with secret and has not
// expired. The client itself never calls it: the spawned model server
// receives the token only as its --api-key argument, and the tests use
// this function to check minted tokens.
func verifyBearerToken(token string, secret []byte) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return coreerr.Wrap(coreerr.ProtocolError, "verify bearer token", err)
	}
	return nil
}
