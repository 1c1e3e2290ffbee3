package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestNewJWTVerifier_EmptySecret(t *testing.T) {
	_, err := NewJWTVerifier("  ")
	require.Error(t, err)
}

func TestVerify_ValidToken(t *testing.T) {
	v, err := NewJWTVerifier("service-secret")
	require.NoError(t, err)

	token := signToken(t, "service-secret", jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	uid, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "alice", uid)
}

func TestVerify_WrongSecret(t *testing.T) {
	v, err := NewJWTVerifier("service-secret")
	require.NoError(t, err)

	token := signToken(t, "other-secret", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"})
	_, err = v.Verify(context.Background(), token)
	require.Error(t, err)
}

func TestVerify_ExpiredToken(t *testing.T) {
	v, err := NewJWTVerifier("service-secret")
	require.NoError(t, err)

	token := signToken(t, "service-secret", jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	_, err = v.Verify(context.Background(), token)
	require.Error(t, err)
}

func TestVerify_RejectsNonHS256(t *testing.T) {
	v, err := NewJWTVerifier("service-secret")
	require.NoError(t, err)

	token := signToken(t, "service-secret", jwt.SigningMethodHS512, jwt.MapClaims{"sub": "alice"})
	_, err = v.Verify(context.Background(), token)
	require.Error(t, err)
}

func TestVerify_MissingSubject(t *testing.T) {
	v, err := NewJWTVerifier("service-secret")
	require.NoError(t, err)

	token := signToken(t, "service-secret", jwt.SigningMethodHS256, jwt.MapClaims{"aud": "tutor"})
	_, err = v.Verify(context.Background(), token)
	require.Error(t, err)
	require.Contains(t, err.Error(), "subject")
}

func TestVerify_Garbage(t *testing.T) {
	v, err := NewJWTVerifier("service-secret")
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "not-a-jwt")
	require.Error(t, err)
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name       string
		header     string
		wantToken  string
		wantReason string
	}{
		{"valid", "Bearer abc123", "abc123", ""},
		{"missing header", "", "", "missing authorization header"},
		{"wrong scheme", "Basic abc123", "", "invalid authorization header format"},
		{"no space", "Bearerabc123", "", "invalid authorization header format"},
		{"empty token", "Bearer ", "", "empty token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, reason := ExtractBearerToken(tc.header)
			require.Equal(t, tc.wantToken, token)
			require.Equal(t, tc.wantReason, reason)
		})
	}
}

func TestIdentityContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, IdentityFromContext(ctx))

	ctx = WithIdentity(ctx, "alice")
	require.Equal(t, "alice", IdentityFromContext(ctx))
}
