package adminauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func TestJWTProviderRoundTrip(t *testing.T) {
	p, err := NewJWTProvider(testSecret, "authenticated")
	require.NoError(t, err)

	token, err := p.IssueToken(User{
		ID:           "3f1c",
		Email:        "admin@healo.com",
		UserMetadata: map[string]interface{}{"role": "admin"},
	}, time.Hour)
	require.NoError(t, err)

	user, err := p.UserFromToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "3f1c", user.ID)
	assert.Equal(t, "admin", user.UserMetadata["role"])
}

func TestJWTProviderRejectsExpiredAndForeignTokens(t *testing.T) {
	p, err := NewJWTProvider(testSecret, "authenticated")
	require.NoError(t, err)

	p.nowFunc = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := p.IssueToken(User{ID: "u"}, time.Minute)
	require.NoError(t, err)
	p.nowFunc = time.Now

	_, err = p.UserFromToken(context.Background(), expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u",
		Audience:  jwt.ClaimStrings{"authenticated"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("a-different-secret-of-sufficient-length"))
	require.NoError(t, err)

	_, err = p.UserFromToken(context.Background(), other)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTProviderShortSecret(t *testing.T) {
	_, err := NewJWTProvider("short", "")
	assert.Error(t, err)
}

func TestUserInfoProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u9","email":"ops@healo.com","app_metadata":{"role":"admin"}}`))
	}))
	defer srv.Close()

	p := NewUserInfoProvider(srv.URL+"/", "service-key", time.Second)

	user, err := p.UserFromToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u9", user.ID)
	assert.Equal(t, "admin", user.AppMetadata["role"])

	_, err = p.UserFromToken(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

type countingProvider struct {
	calls atomic.Int32
	next  IdentityProvider
}

func (c *countingProvider) UserFromToken(ctx context.Context, token string) (*User, error) {
	c.calls.Add(1)
	return c.next.UserFromToken(ctx, token)
}

func TestCachedProviderCachesSuccessOnly(t *testing.T) {
	inner := &countingProvider{next: users}
	p := NewCachedProvider(inner, 8, time.Minute)

	for i := 0; i < 3; i++ {
		u, err := p.UserFromToken(context.Background(), "meta-admin")
		require.NoError(t, err)
		assert.Equal(t, "u1", u.ID)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	for i := 0; i < 2; i++ {
		_, err := p.UserFromToken(context.Background(), "garbage")
		assert.Error(t, err)
	}
	assert.Equal(t, int32(3), inner.calls.Load())
}
