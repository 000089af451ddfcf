// Package auth validates bearer tokens issued by the external identity
// provider (Supabase-compatible JWKS endpoint). It never issues tokens
// itself — that is the out-of-scope identity provider's job.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/arnavsood/ludoarena/internal/apperr"
)

// allowedAlgorithms restricts verification to asymmetric algorithms,
// closing the classic HMAC/alg-confusion hole for JWKS-backed tokens.
var allowedAlgorithms = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}

// Claims is the minimal claim set this service relies on.
type Claims struct {
	jwt.RegisteredClaims
}

// Validator verifies bearer tokens against a JWKS endpoint, caching and
// rotating signing keys in the background. Safe for concurrent use.
type Validator struct {
	jwks     keyfunc.Keyfunc
	audience string
}

// NewValidator builds a Validator that fetches signing keys from jwksURL.
// The returned Validator owns a background refresh goroutine tied to ctx.
func NewValidator(ctx context.Context, jwksURL, audience string) (*Validator, error) {
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("fetch jwks from %s: %w", jwksURL, err)
	}
	return &Validator{jwks: jwks, audience: audience}, nil
}

// Validate verifies tokenString's signature, issuer-agnostic audience, and
// expiry, returning the subject (user id) and expiry on success.
func (v *Validator) Validate(tokenString string) (userID string, expiresAt time.Time, err error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.jwks.Keyfunc,
		jwt.WithValidMethods(allowedAlgorithms),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", time.Time{}, apperr.New(apperr.AuthExpired, "token expired")
		}
		return "", time.Time{}, apperr.Wrap(apperr.AuthFailed, "invalid token", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", time.Time{}, apperr.New(apperr.AuthFailed, "invalid token claims")
	}

	sub := claims.Subject
	if sub == "" {
		return "", time.Time{}, apperr.New(apperr.AuthFailed, "missing subject claim")
	}

	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	return sub, exp, nil
}
