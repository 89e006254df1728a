package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenValidator validates Azure AD access tokens presented as bearer
// credentials by API clients. Keys come from the tenant's JWKS endpoint and
// are cached with periodic refresh to survive key rotation.
type TokenValidator struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// Claims are the validated token claims the portal cares about.
type Claims struct {
	Subject           string
	PreferredUsername string
	Name              string
	TenantID          string
}

func NewTokenValidator(jwksURL, issuer, audience string) (*TokenValidator, error) {
	ctx := context.Background()
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("registering JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("fetching JWKS from %s: %w", jwksURL, err)
	}
	return &TokenValidator{
		jwksURL:  jwksURL,
		cache:    cache,
		issuer:   issuer,
		audience: audience,
	}, nil
}

// Validate checks signature, expiry, issuer, and audience, and extracts the
// claims used to resolve the portal user.
func (v *TokenValidator) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("getting JWKS: %w", err)
	}

	options := []jwt.ParseOption{
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}
	token, err := jwt.Parse([]byte(tokenString), options...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims := &Claims{Subject: token.Subject()}
	if v, ok := token.Get("preferred_username"); ok {
		if s, ok := v.(string); ok {
			claims.PreferredUsername = s
		}
	}
	if v, ok := token.Get("name"); ok {
		if s, ok := v.(string); ok {
			claims.Name = s
		}
	}
	if v, ok := token.Get("tid"); ok {
		if s, ok := v.(string); ok {
			claims.TenantID = s
		}
	}
	return claims, nil
}
