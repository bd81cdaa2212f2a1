package oauth2client

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/AmmannChristian/go-tokengate/internal/grant"
	"github.com/AmmannChristian/go-tokengate/ratelimit"
	"github.com/AmmannChristian/go-tokengate/testutil"
	"github.com/golang-jwt/jwt/v5"
)

func testToken(t *testing.T, accessToken string, expiresIn, createdAt int64) *Token {
	t.Helper()

	limiter, err := ratelimit.New(ratelimit.DefaultLimits())
	if err != nil {
		t.Fatalf("ratelimit.New failed: %v", err)
	}
	return newToken(grant.Grant{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   expiresIn,
		Scope:       "read",
		CreatedAt:   createdAt,
	}, limiter)
}

func TestFloorToSecond(t *testing.T) {
	tests := []struct {
		in   int64
		want int64
	}{
		{in: 0, want: 0},
		{in: 999, want: 0},
		{in: 1000, want: 1000},
		{in: 4_600_999, want: 4_600_000},
		{in: -1, want: -1000},
	}

	for _, tt := range tests {
		if got := floorToSecond(tt.in); got != tt.want {
			t.Errorf("floorToSecond(%d): expected %d, got %d", tt.in, tt.want, got)
		}
	}
}

func TestNewToken_Times(t *testing.T) {
	tok := testToken(t, "tok1", 3600, 1000)

	if tok.CreatedAtMillis() != 1_000_000 {
		t.Errorf("expected createdAtMs 1000000, got %d", tok.CreatedAtMillis())
	}
	if tok.ExpiresAtMillis() != 4_600_000 {
		t.Errorf("expected expiresAtMs 4600000, got %d", tok.ExpiresAtMillis())
	}
	if tok.ExpiresAtMillis()%1000 != 0 {
		t.Error("expiry must be a whole second")
	}
	if !tok.CreatedAt().Equal(time.Unix(1000, 0)) {
		t.Errorf("unexpected CreatedAt %v", tok.CreatedAt())
	}
	if !tok.ExpiresAt().Equal(time.Unix(4600, 0)) {
		t.Errorf("unexpected ExpiresAt %v", tok.ExpiresAt())
	}
}

func TestToken_Expired(t *testing.T) {
	tok := testToken(t, "tok1", 60, 1000)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "at issue", now: time.Unix(1000, 0), want: false},
		{name: "last millisecond", now: time.UnixMilli(1_059_999), want: false},
		{name: "at expiry", now: time.Unix(1060, 0), want: true},
		{name: "after expiry", now: time.Unix(2000, 0), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tok.Expired(tt.now); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestToken_ZeroLifetime(t *testing.T) {
	tok := testToken(t, "tok1", 0, 1000)
	if !tok.Expired(time.Unix(1000, 0)) {
		t.Error("a zero lifetime token is expired at issue")
	}
}

func TestNewToken_LargestAcceptedLifetime(t *testing.T) {
	tests := []struct {
		name      string
		expiresIn int64
		createdAt int64
	}{
		{name: "from epoch", expiresIn: math.MaxInt64 / 1000, createdAt: 0},
		{name: "from now", expiresIn: math.MaxInt64/1000 - 1700000000, createdAt: 1700000000},
		{name: "before epoch", expiresIn: math.MaxInt64 / 1000, createdAt: -1700000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := testutil.NewGrant("tok1", tt.expiresIn, time.Unix(tt.createdAt, 0)).JSON()
			g, err := grant.Decode([]byte(body))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			limiter, err := ratelimit.New(ratelimit.DefaultLimits())
			if err != nil {
				t.Fatalf("ratelimit.New failed: %v", err)
			}
			tok := newToken(g, limiter)

			if tok.ExpiresAtMillis() < tok.CreatedAtMillis() {
				t.Errorf("expiry %d before issue %d", tok.ExpiresAtMillis(), tok.CreatedAtMillis())
			}
			if tok.Expired(time.Unix(1700000000, 0)) {
				t.Error("token should not be expired")
			}
		})
	}
}

func TestToken_OAuth2Token(t *testing.T) {
	tok := testToken(t, "tok1", 3600, 1000)
	converted := tok.OAuth2Token()

	if converted.AccessToken != "tok1" {
		t.Errorf("unexpected access token %q", converted.AccessToken)
	}
	if !converted.Expiry.Equal(time.Unix(4600, 0)) {
		t.Errorf("unexpected expiry %v", converted.Expiry)
	}
	if converted.Extra("created_at") != int64(1000) {
		t.Errorf("unexpected created_at extra %v", converted.Extra("created_at"))
	}
}

func TestToken_Claims(t *testing.T) {
	signed := testutil.SignedJWT(t, jwt.MapClaims{"sub": "service-account", "scope": "read"})
	tok := testToken(t, signed, 3600, time.Now().Unix())

	claims, err := tok.Claims()
	if err != nil {
		t.Fatalf("Claims failed: %v", err)
	}
	if claims["sub"] != "service-account" {
		t.Errorf("unexpected subject %v", claims["sub"])
	}

	opaque := testToken(t, "opaque-token", 3600, time.Now().Unix())
	if _, err := opaque.Claims(); !errors.Is(err, ErrNotJWT) {
		t.Errorf("expected ErrNotJWT, got %v", err)
	}
}

func TestToken_StringHidesSecret(t *testing.T) {
	tok := testToken(t, "super-secret-token", 3600, 1000)
	if strings.Contains(tok.String(), "super-secret-token") {
		t.Errorf("String leaked the access token: %s", tok)
	}
}
