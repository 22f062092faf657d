package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-access-secret-key-for-testing-purposes"

func TestGenerateAndValidate(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	userID := uuid.New()

	token, err := service.GenerateAccessToken(userID, "0771234567", "ADMIN")
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "0771234567", claims.Phone)
	assert.Equal(t, "ADMIN", claims.Role)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestValidateAccessToken_Expired(t *testing.T) {
	service := NewService(testSecret, time.Minute)
	issued := time.Now().Add(-time.Hour)
	service.now = func() time.Time { return issued }

	token, err := service.GenerateAccessToken(uuid.New(), "0771234567", "CUSTOMER")
	require.NoError(t, err)

	service.now = time.Now
	_, err = service.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	sign := func(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}
	valid := func() Claims {
		return Claims{
			UserID:    uuid.New(),
			Role:      "CUSTOMER",
			TokenType: AccessToken,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
	}

	t.Run("wrong secret", func(t *testing.T) {
		other := NewService("another-secret", time.Hour)
		token, err := other.GenerateAccessToken(uuid.New(), "0771234567", "CUSTOMER")
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("refresh token", func(t *testing.T) {
		claims := valid()
		claims.TokenType = "refresh"
		_, err := service.ValidateAccessToken(sign(t, jwt.SigningMethodHS256, []byte(testSecret), claims))
		assert.ErrorContains(t, err, "invalid token type")
	})

	t.Run("missing user id", func(t *testing.T) {
		claims := valid()
		claims.UserID = uuid.Nil
		_, err := service.ValidateAccessToken(sign(t, jwt.SigningMethodHS256, []byte(testSecret), claims))
		assert.Error(t, err)
	})

	t.Run("unsigned token", func(t *testing.T) {
		token := sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid())
		_, err := service.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := service.ValidateAccessToken("not.a.token")
		assert.Error(t, err)
	})
}
