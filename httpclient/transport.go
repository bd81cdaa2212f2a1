package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/AmmannChristian/go-tokengate/oauth2client"
)

// ErrNilTokenStore is returned by RoundTrip when no TokenStore is configured.
var ErrNilTokenStore = errors.New("httpclient: TokenStore is nil")

// maxDrain bounds how much of a rejected response is read before retrying.
const maxDrain = 4 << 10

// OAuth2Transport is an http.RoundTripper that adds OAuth2 Bearer tokens to
// outgoing HTTP requests and spends one unit of the token's rate limit per
// request.
//
// It wraps an existing transport (typically http.DefaultTransport). If the
// API answers 401, the token is refreshed once and a replayable request is
// sent again.
type OAuth2Transport struct {
	// Base is the underlying HTTP transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// Store provides access tokens and their rate limiters.
	Store *oauth2client.TokenStore

	// SkipRateLimit sends requests without acquiring quota.
	SkipRateLimit bool
}

// RoundTrip implements http.RoundTripper interface.
// The token fetch and the rate-limit wait respect the request context's
// cancellation and deadline.
func (t *OAuth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Store == nil {
		closeBody(req)
		return nil, ErrNilTokenStore
	}

	tok, err := t.Store.GetToken(req.Context())
	if err != nil {
		closeBody(req)
		return nil, fmt.Errorf("httpclient: failed to get token: %w", err)
	}

	resp, err := t.send(req, tok)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || !replayable(req) {
		return resp, err
	}

	// Rejected: drop the token and try once more with a new one.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	resp.Body.Close()

	tok, err = t.Store.Refresh(req.Context(), tok)
	if err != nil {
		return nil, fmt.Errorf("httpclient: failed to refresh token: %w", err)
	}

	retry := req
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("httpclient: failed to rewind request body: %w", err)
		}
		retry = req.Clone(req.Context())
		retry.Body = body
	}

	return t.send(retry, tok)
}

func (t *OAuth2Transport) send(req *http.Request, tok *oauth2client.Token) (*http.Response, error) {
	if !t.SkipRateLimit {
		if err := tok.RateLimiter().Acquire(req.Context()); err != nil {
			closeBody(req)
			return nil, fmt.Errorf("httpclient: rate limit: %w", err)
		}
	}

	// Clone the request to avoid modifying the original
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+tok.AccessToken())

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	return base.RoundTrip(reqClone)
}

// closeBody honours the RoundTripper contract on paths that never reach the
// base transport.
func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

// replayable reports whether req can be sent a second time.
func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// NewOAuth2Transport creates a new OAuth2Transport with the given token store.
// The base transport defaults to http.DefaultTransport if not specified.
func NewOAuth2Transport(store *oauth2client.TokenStore, base http.RoundTripper) *OAuth2Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &OAuth2Transport{
		Base:  base,
		Store: store,
	}
}
