package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "history-test-secret"

func TestSessionTokens_Claims(t *testing.T) {
	tests := []struct {
		name     string
		generate func(userID string, expiration time.Duration, secret string) (string, error)
		want     string
	}{
		{"access", GenerateToken, TokenTypeAccess},
		{"refresh", GenerateRefreshToken, TokenTypeRefresh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now().Add(-time.Second)
			token, err := tt.generate("user-1", time.Hour, testSecret)
			require.NoError(t, err)

			claims, err := ValidateToken(token, testSecret)
			require.NoError(t, err)

			assert.Equal(t, "user-1", claims.UserID)
			assert.Equal(t, "user-1", claims.Subject)
			assert.Equal(t, tt.want, claims.TokenType)
			assert.Equal(t, "imotara-history", claims.Issuer)
			assert.NotEmpty(t, claims.ID)
			assert.True(t, claims.IssuedAt.After(before))
			assert.WithinDuration(t, claims.IssuedAt.Add(time.Hour), claims.ExpiresAt.Time, time.Second)
		})
	}
}

func TestSessionTokens_UniquePerIssue(t *testing.T) {
	a, err := GenerateToken("user-1", time.Hour, testSecret)
	require.NoError(t, err)
	b, err := GenerateToken("user-1", time.Hour, testSecret)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func sign(t *testing.T, method gojwt.SigningMethod, key interface{}, claims *Claims) string {
	t.Helper()
	s, err := gojwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestValidateToken_Rejects(t *testing.T) {
	now := time.Now()
	claimsFrom := func(issuer string, exp time.Time) *Claims {
		return &Claims{
			UserID:    "user-1",
			TokenType: TokenTypeAccess,
			RegisteredClaims: gojwt.RegisteredClaims{
				Issuer:    issuer,
				IssuedAt:  gojwt.NewNumericDate(now.Add(-2 * time.Hour)),
				ExpiresAt: gojwt.NewNumericDate(exp),
			},
		}
	}

	expired, err := GenerateToken("user-1", -time.Hour, testSecret)
	require.NoError(t, err)
	valid, err := GenerateToken("user-1", time.Hour, testSecret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"expired", expired, testSecret},
		{"wrong secret", valid, "another-secret"},
		{"foreign issuer", sign(t, gojwt.SigningMethodHS256, []byte(testSecret), claimsFrom("someone-else", now.Add(time.Hour))), testSecret},
		{"missing issuer", sign(t, gojwt.SigningMethodHS256, []byte(testSecret), claimsFrom("", now.Add(time.Hour))), testSecret},
		{"unsigned", sign(t, gojwt.SigningMethodNone, gojwt.UnsafeAllowNoneSignatureType, claimsFrom("imotara-history", now.Add(time.Hour))), testSecret},
		{"garbage", "not.a.token", testSecret},
		{"empty", "", testSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.token, tt.secret)
			assert.Error(t, err)
			assert.Nil(t, claims)
		})
	}
}

func TestValidateTokenOfType(t *testing.T) {
	access, err := GenerateToken("user-1", time.Hour, testSecret)
	require.NoError(t, err)
	refresh, err := GenerateRefreshToken("user-1", time.Hour, testSecret)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		want    string
		wantErr error
	}{
		{"access as access", access, TokenTypeAccess, nil},
		{"refresh as refresh", refresh, TokenTypeRefresh, nil},
		{"refresh replayed as access", refresh, TokenTypeAccess, ErrWrongTokenType},
		{"access used to refresh", access, TokenTypeRefresh, ErrWrongTokenType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateTokenOfType(tt.token, testSecret, tt.want)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, claims.TokenType)
		})
	}
}

func BenchmarkValidateTokenOfType(b *testing.B) {
	token, _ := GenerateToken("bench-user", 15*time.Minute, testSecret)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ValidateTokenOfType(token, testSecret, TokenTypeAccess); err != nil {
			b.Fatal(err)
		}
	}
}
