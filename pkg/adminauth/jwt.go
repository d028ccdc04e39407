package adminauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type supabaseClaims struct {
	jwt.RegisteredClaims
	Email        string                 `json:"email"`
	Role         string                 `json:"role,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	AppMetadata  map[string]interface{} `json:"app_metadata,omitempty"`
}

// JWTProvider verifies Supabase access tokens signed with the project's
// HS256 secret.
type JWTProvider struct {
	signingKey []byte
	audience   string
	leeway     time.Duration
	nowFunc    func() time.Time
}

func NewJWTProvider(secret, audience string) (*JWTProvider, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 characters")
	}
	return &JWTProvider{
		signingKey: []byte(secret),
		audience:   audience,
		leeway:     30 * time.Second,
		nowFunc:    time.Now,
	}, nil
}

func (p *JWTProvider) UserFromToken(_ context.Context, tokenString string) (*User, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(p.leeway),
		jwt.WithTimeFunc(p.nowFunc),
	}
	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}

	claims := &supabaseClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return p.signingKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &User{
		ID:           claims.Subject,
		Email:        claims.Email,
		UserMetadata: claims.UserMetadata,
		AppMetadata:  claims.AppMetadata,
	}, nil
}

// IssueToken signs a token in the Supabase shape. Used by tests and local
// tooling; production tokens come from Supabase auth.
func (p *JWTProvider) IssueToken(user User, ttl time.Duration) (string, error) {
	now := p.nowFunc()
	claims := supabaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:        user.Email,
		Role:         "authenticated",
		UserMetadata: user.UserMetadata,
		AppMetadata:  user.AppMetadata,
	}
	if p.audience != "" {
		claims.Audience = jwt.ClaimStrings{p.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signingKey)
}
