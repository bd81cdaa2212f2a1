package oauth2client

import (
	"fmt"
	"time"

	"github.com/AmmannChristian/go-tokengate/internal/grant"
	"github.com/AmmannChristian/go-tokengate/ratelimit"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Token is an issued access token. It is immutable; a refresh produces a new
// Token with its own RateLimiter.
type Token struct {
	accessToken string
	tokenType   string
	scope       string
	createdAtMs int64
	expiresAtMs int64
	limiter     *ratelimit.RateLimiter
}

func newToken(g grant.Grant, limiter *ratelimit.RateLimiter) *Token {
	createdAtMs := g.CreatedAt * 1000
	return &Token{
		accessToken: g.AccessToken,
		tokenType:   g.TokenType,
		scope:       g.Scope,
		createdAtMs: createdAtMs,
		expiresAtMs: floorToSecond(createdAtMs + g.ExpiresIn*1000),
		limiter:     limiter,
	}
}

// floorToSecond never rounds an expiry later than the server stated.
func floorToSecond(ms int64) int64 {
	rem := ms % 1000
	if rem < 0 {
		rem += 1000
	}
	return ms - rem
}

// AccessToken returns the bearer value.
func (t *Token) AccessToken() string { return t.accessToken }

// TokenType returns the token type as sent by the server, e.g. "bearer".
func (t *Token) TokenType() string { return t.tokenType }

// Scope returns the granted scope string.
func (t *Token) Scope() string { return t.scope }

// CreatedAtMillis returns the issue time in epoch milliseconds.
func (t *Token) CreatedAtMillis() int64 { return t.createdAtMs }

// ExpiresAtMillis returns the expiry in epoch milliseconds, always a whole second.
func (t *Token) ExpiresAtMillis() int64 { return t.expiresAtMs }

// CreatedAt returns the issue time.
func (t *Token) CreatedAt() time.Time { return time.UnixMilli(t.createdAtMs) }

// ExpiresAt returns the expiry time.
func (t *Token) ExpiresAt() time.Time { return time.UnixMilli(t.expiresAtMs) }

// Expired reports whether the token is no longer usable at now.
func (t *Token) Expired(now time.Time) bool {
	return now.UnixMilli() >= t.expiresAtMs
}

// RateLimiter returns the limiter owned by this token. Acquire a unit from it
// before every rate-limited API call.
func (t *Token) RateLimiter() *ratelimit.RateLimiter { return t.limiter }

// OAuth2Token converts the token for use with golang.org/x/oauth2 clients.
func (t *Token) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken: t.accessToken,
		TokenType:   t.tokenType,
		Expiry:      t.ExpiresAt(),
	}
	return tok.WithExtra(map[string]interface{}{
		"scope":      t.scope,
		"created_at": t.createdAtMs / 1000,
	})
}

// Claims decodes the access token as a JWT without verifying its signature.
// The client cannot verify tokens issued to it; use the claims for
// diagnostics only. Opaque tokens yield ErrNotJWT.
func (t *Token) Claims() (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.accessToken, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotJWT, err)
	}
	return claims, nil
}

// String hides the bearer value.
func (t *Token) String() string {
	return fmt.Sprintf("Token{type=%s scope=%q expires=%s}", t.tokenType, t.scope, t.ExpiresAt().UTC().Format(time.RFC3339))
}
