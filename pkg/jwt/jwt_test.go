package jwt

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "test-access-secret-key-1234567890"
	testRefreshSecret = "test-refresh-secret-key-1234567890"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestManager(clock *fakeClock) *Manager {
	return NewManager(testAccessSecret, testRefreshSecret, 15*time.Minute, 7*24*time.Hour,
		WithIssuer("test-issuer"), WithClock(clock.Now))
}

func TestManager_AccessTokenRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	manager := newTestManager(clock)

	token, issued, err := manager.GenerateAccessToken("u-100", []string{"ADMIN", "MANAGER"})
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)
	assert.NotEmpty(t, issued.ID)

	claims, err := manager.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-100", claims.Subject)
	assert.ElementsMatch(t, []string{"ADMIN", "MANAGER"}, claims.Roles)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.True(t, claims.ExpiresAt.Time.Equal(clock.now.Add(15*time.Minute)))
}

func TestManager_AccessTokenExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	manager := newTestManager(clock)

	token, _, err := manager.GenerateAccessToken("u-100", []string{"USER"})
	require.NoError(t, err)

	clock.now = clock.now.Add(14 * time.Minute)
	_, err = manager.ValidateAccessToken(token)
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Minute)
	_, err = manager.ValidateAccessToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestManager_RejectsTamperedAndForeignTokens(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	manager := newTestManager(clock)

	token, _, err := manager.GenerateAccessToken("u-100", []string{"USER"})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	other := NewManager("another-access-secret-000000000000", testRefreshSecret, time.Minute, time.Hour,
		WithIssuer("test-issuer"), WithClock(clock.Now))
	foreign, _, err := other.GenerateAccessToken("u-100", []string{"USER"})
	require.NoError(t, err)

	for name, candidate := range map[string]string{
		"tampered signature": tampered,
		"foreign secret":     foreign,
		"garbage":            "invalid-token",
		"empty":              "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := manager.ValidateAccessToken(candidate)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}
}

func TestManager_RejectsNoneAlgorithm(t *testing.T) {
	manager := NewManager(testAccessSecret, testRefreshSecret, time.Minute, time.Hour)

	claims := &AccessClaims{
		Roles:     []string{"ADMIN"},
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = manager.ValidateAccessToken(unsigned)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestManager_TokenTypesAreNotInterchangeable(t *testing.T) {
	// одинаковый секрет, чтобы проверка упиралась именно в тип
	manager := NewManager(testAccessSecret, testAccessSecret, 15*time.Minute, time.Hour)

	refresh, _, err := manager.GenerateRefreshToken("u-1", "owner-1", "tok-1")
	require.NoError(t, err)
	_, err = manager.ValidateAccessToken(refresh)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	access, _, err := manager.GenerateAccessToken("u-1", []string{"USER"})
	require.NoError(t, err)
	_, err = manager.ValidateRefreshToken(access)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestManager_RefreshTokenRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	manager := newTestManager(clock)

	token, issued, err := manager.GenerateRefreshToken("u-100", "owner-1", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", issued.ID)

	claims, err := manager.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", claims.OwnerID)
	assert.Equal(t, "tok-1", claims.ID)
	assert.Equal(t, "u-100", claims.Subject)

	clock.now = clock.now.Add(7*24*time.Hour + time.Second)
	_, err = manager.ValidateRefreshToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestManager_IssuerMismatch(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuerA := NewManager(testAccessSecret, testRefreshSecret, time.Minute, time.Hour, WithIssuer("a"), WithClock(clock.Now))
	issuerB := NewManager(testAccessSecret, testRefreshSecret, time.Minute, time.Hour, WithIssuer("b"), WithClock(clock.Now))

	token, _, err := issuerA.GenerateAccessToken("u-1", []string{"USER"})
	require.NoError(t, err)

	_, err = issuerB.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNewVerifier(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newTestManager(clock)
	verifier := NewVerifier(testAccessSecret, WithIssuer("test-issuer"), WithClock(clock.Now))

	token, _, err := issuer.GenerateAccessToken("u-1", []string{"CASHIER"})
	require.NoError(t, err)

	claims, err := verifier.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, []string{"CASHIER"}, claims.Roles)

	_, _, err = verifier.GenerateRefreshToken("u-1", "o-1", "t-1")
	assert.ErrorIs(t, err, ErrRefreshDisabled)
	_, err = verifier.ValidateRefreshToken("x.y.z")
	assert.ErrorIs(t, err, ErrRefreshDisabled)
}
