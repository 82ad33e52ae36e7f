package di

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"chat-backend/infrastructure/config"
	"chat-backend/pkg/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, method jwt.SigningMethod, key interface{}, audience ...string) string {
	t.Helper()
	claims := auth.Claims{
		UserID: "victim",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "victim",
			Audience:  audience,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestProvideJWTValidator_WithoutKeyRejectsEveryToken(t *testing.T) {
	cfg := &config.Config{Environment: "staging"}

	validator, err := ProvideJWTValidator(cfg)
	require.NoError(t, err)

	for _, guess := range []string{"unset-staging", "staging", ""} {
		_, err := validator.ValidateToken(signedToken(t, jwt.SigningMethodHS256, []byte(guess)))
		assert.Error(t, err, "token signed with %q", guess)
	}

	other, err := ProvideJWTValidator(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, validator, other)
}

func TestProvideJWTValidator_SharedSecret(t *testing.T) {
	validator, err := ProvideJWTValidator(&config.Config{JWTSecret: "s3cret"})
	require.NoError(t, err)

	claims, err := validator.ValidateToken(signedToken(t, jwt.SigningMethodHS256, []byte("s3cret")))
	require.NoError(t, err)
	assert.Equal(t, "victim", claims.UserID)
}

func TestProvideJWTValidator_PublicKeyAndAudience(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	validator, err := ProvideJWTValidator(&config.Config{
		JWTSecret:    "ignored",
		JWTPublicKey: string(publicPEM),
		JWTAudience:  []string{"ws"},
	})
	require.NoError(t, err)

	_, err = validator.ValidateToken(signedToken(t, jwt.SigningMethodRS256, key, "ws"))
	assert.NoError(t, err)

	_, err = validator.ValidateToken(signedToken(t, jwt.SigningMethodRS256, key, "mobile"))
	assert.ErrorIs(t, err, auth.ErrInvalidClaims)

	_, err = validator.ValidateToken(signedToken(t, jwt.SigningMethodHS256, []byte("ignored"), "ws"))
	assert.Error(t, err)
}
