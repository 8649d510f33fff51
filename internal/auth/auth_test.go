package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)

	assert.True(t, CheckPassword(hash, "secret1"))
	assert.False(t, CheckPassword(hash, "secret2"))
	assert.False(t, CheckPassword("not-a-hash", "secret1"))
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	signed, err := tokens.Issue("user-1", "ann@example.com")
	require.NoError(t, err)

	claims, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ann@example.com", claims.Email)
}

func TestTokensRejectTampering(t *testing.T) {
	signed, err := NewTokens("one", time.Hour).Issue("u", "e")
	require.NoError(t, err)

	_, err = NewTokens("two", time.Hour).Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokens("one", time.Hour).Parse(signed + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensExpire(t *testing.T) {
	tokens := NewTokens("s", time.Minute)
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issued }

	signed, err := tokens.Issue("u", "e")
	require.NoError(t, err)

	tokens.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tokens.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensRejectOtherAlgorithms(t *testing.T) {
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokens("s", time.Hour).Parse(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
