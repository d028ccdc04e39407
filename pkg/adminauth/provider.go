package adminauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/healo-ai/concierge/pkg/common/config"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// User is the subset of a Supabase auth user the gate looks at.
type User struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	AppMetadata  map[string]interface{} `json:"app_metadata"`
}

type IdentityProvider interface {
	UserFromToken(ctx context.Context, token string) (*User, error)
}

// CachedProvider remembers verified users for a short TTL. Entries are
// keyed by a hash of the token so raw tokens never sit in memory longer
// than the request.
type CachedProvider struct {
	next  IdentityProvider
	cache *expirable.LRU[string, *User]
}

func NewCachedProvider(next IdentityProvider, size int, ttl time.Duration) *CachedProvider {
	if size <= 0 {
		size = 256
	}
	return &CachedProvider{
		next:  next,
		cache: expirable.NewLRU[string, *User](size, nil, ttl),
	}
}

func (c *CachedProvider) UserFromToken(ctx context.Context, token string) (*User, error) {
	key := tokenKey(token)
	if user, ok := c.cache.Get(key); ok {
		return user, nil
	}
	user, err := c.next.UserFromToken(ctx, token)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, user)
	return user, nil
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewProvider verifies tokens locally when a JWT secret is configured and
// falls back to asking Supabase otherwise.
func NewProvider(cfg *config.Config) (IdentityProvider, error) {
	var base IdentityProvider
	if cfg.SupabaseJWTSecret != "" {
		p, err := NewJWTProvider(cfg.SupabaseJWTSecret, "authenticated")
		if err != nil {
			return nil, err
		}
		base = p
	} else {
		base = NewUserInfoProvider(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.UpstreamRequestTimeout)
	}
	if cfg.IdentityCacheTTL <= 0 {
		return base, nil
	}
	return NewCachedProvider(base, cfg.IdentityCacheSize, cfg.IdentityCacheTTL), nil
}
