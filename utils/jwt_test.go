package utils

import (
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateToken("user1", "admin")
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user1", claims.ID)
	assert.Equal(t, "admin", claims.Role)
}

func TestTokenSecretReadAtCallTime(t *testing.T) {
	// The secret is typically loaded from .env after package init; a key read
	// at init time would be empty. The secret set here must be the one used.
	t.Setenv("JWT_SECRET", "secret-from-dotenv")

	token, err := GenerateToken("user1", "finance")
	require.NoError(t, err)

	t.Setenv("JWT_SECRET", "rotated-secret")
	_, err = ValidateToken(token)
	assert.Error(t, err)
}

func TestGenerateTokenRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := GenerateToken("user1", "admin")
	assert.Error(t, err)
}

func TestValidateTokenRejectsEmptyKeySignature(t *testing.T) {
	t.Setenv("JWT_SECRET", "real-secret")

	claims := &JWTClaim{
		ID:   "attacker",
		Role: "admin",
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(""))
	require.NoError(t, err)

	_, err = ValidateToken(forged)
	assert.Error(t, err)
}

func TestValidateTokenRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "real-secret")
	token, err := GenerateToken("user1", "admin")
	require.NoError(t, err)

	t.Setenv("JWT_SECRET", "")
	_, err = ValidateToken(token)
	assert.Error(t, err)
}
