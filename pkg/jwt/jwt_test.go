package jwt

import (
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret-key-for-testing-purposes"
	testIssuer = "smarttransit-seat-inventory"
)

func newTestService() *Service {
	return NewService(testSecret, testIssuer, time.Hour)
}

func TestNewService(t *testing.T) {
	service := newTestService()

	assert.NotNil(t, service)
	assert.Equal(t, testSecret, service.secret)
	assert.Equal(t, testIssuer, service.issuer)
	assert.Equal(t, time.Hour, service.Expiry())
}

func TestGenerateAccessToken(t *testing.T) {
	service := newTestService()
	userID := uuid.New()
	roles := []string{"passenger"}

	token, err := service.GenerateAccessToken(userID, roles)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, roles, claims.Roles)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, testIssuer, claims.Issuer)
}

func TestGenerateGuestToken(t *testing.T) {
	service := newTestService()

	token, sessionID, err := service.GenerateGuestToken()
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, sessionID)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, sessionID, claims.UserID)
	assert.Equal(t, GuestToken, claims.TokenType)
	assert.True(t, claims.HasRole(RoleGuest))
	assert.False(t, claims.HasRole("admin"))

	_, other, err := service.GenerateGuestToken()
	require.NoError(t, err)
	assert.NotEqual(t, sessionID, other)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := newTestService().GenerateAccessToken(uuid.New(), []string{"passenger"})
	require.NoError(t, err)

	other := NewService("another-secret-key-for-testing", testIssuer, time.Hour)
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	token, err := NewService(testSecret, "someone-else", time.Hour).GenerateAccessToken(uuid.New(), nil)
	require.NoError(t, err)

	_, err = newTestService().ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Malformed(t *testing.T) {
	service := newTestService()

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := service.ValidateToken(token)
		assert.Error(t, err, token)
	}
}

func TestValidateToken_UnknownType(t *testing.T) {
	service := newTestService()
	now := time.Now()
	claims := Claims{
		UserID:    uuid.New(),
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    testIssuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.ErrorContains(t, err, "invalid token type")
}

func TestExpiredToken(t *testing.T) {
	service := newTestService()
	issued := time.Date(2026, 10, 20, 7, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return issued }

	token, err := service.GenerateAccessToken(uuid.New(), []string{"passenger"})
	require.NoError(t, err)
	assert.False(t, service.IsTokenExpired(token))

	service.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = service.ValidateToken(token)
	assert.Error(t, err)
	assert.True(t, service.IsTokenExpired(token))
}

func TestExtractClaims(t *testing.T) {
	service := newTestService()
	userID := uuid.New()

	token, err := service.GenerateAccessToken(userID, []string{"admin"})
	require.NoError(t, err)

	// extraction does not need the secret
	claims, err := NewService("unrelated", "unrelated", time.Minute).ExtractClaims(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.True(t, claims.HasRole("admin"))

	assert.True(t, service.IsTokenExpired("garbage"))
}

func TestTokenSigningMethod(t *testing.T) {
	service := newTestService()
	claims := Claims{
		UserID:    uuid.New(),
		TokenType: AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    testIssuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.Error(t, err)
}

func TestConcurrentTokenGeneration(t *testing.T) {
	service := newTestService()

	var wg sync.WaitGroup
	tokens := make([]string, 20)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := service.GenerateAccessToken(uuid.New(), []string{"passenger"})
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, token := range tokens {
		assert.False(t, seen[token])
		seen[token] = true
		_, err := service.ValidateToken(token)
		assert.NoError(t, err)
	}
}
