package oauth2client

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AmmannChristian/go-tokengate/internal/grant"
	"github.com/AmmannChristian/go-tokengate/ratelimit"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// maxGrantBody bounds the token response read into memory.
const maxGrantBody = 1 << 20

const refreshKey = "grant"

// Logger is an interface for optional logging in TokenStore.
// Implementations can log token refresh events if desired.
type Logger interface {
	Printf(format string, args ...any)
}

// TokenStore caches the access token of one client identity and refreshes it
// when it expires. Concurrent misses share a single token request.
// It is safe for concurrent use.
type TokenStore struct {
	cfg       Config
	ctx       context.Context // fallback context for Token()
	transport Transport
	now       func() time.Time
	logger    Logger

	limiterOpts []ratelimit.Option

	token atomic.Pointer[Token]
	group singleflight.Group
	// grants counts token requests that reached the transport.
	grants atomic.Int64
}

// Option is a functional option for configuring TokenStore.
type Option func(*TokenStore)

// WithLogger sets a custom logger for token refresh events.
// If not set, no logging will occur.
func WithLogger(logger Logger) Option {
	return func(s *TokenStore) {
		s.logger = logger
	}
}

// WithLoggingEnabled enables logging using the default Go log package.
// This is a convenience option that sets the logger to log.Default().
func WithLoggingEnabled() Option {
	return func(s *TokenStore) {
		s.logger = log.Default()
	}
}

// WithTransport replaces the HTTPTransport used for token requests.
func WithTransport(t Transport) Option {
	return func(s *TokenStore) {
		if t != nil {
			s.transport = t
		}
	}
}

// WithHTTPClient sends token requests through c.
func WithHTTPClient(c *http.Client) Option {
	return WithTransport(&HTTPTransport{Client: c})
}

// WithClock overrides time.Now for expiry checks and for the limiters of
// issued tokens.
func WithClock(now func() time.Time) Option {
	return func(s *TokenStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLimiterOptions passes extra options to the RateLimiter of every issued token.
func WithLimiterOptions(opts ...ratelimit.Option) Option {
	return func(s *TokenStore) {
		s.limiterOpts = append(s.limiterOpts, opts...)
	}
}

// WithRecorder exports admission decisions of every issued token's limiter
// under the client ID. r is called on the acquiring goroutine; wrap a
// RedisRecorder in ratelimit.NewAsyncRecorder.
func WithRecorder(r ratelimit.Recorder) Option {
	return func(s *TokenStore) {
		s.limiterOpts = append(s.limiterOpts, ratelimit.WithRecorder(r, s.cfg.ClientID))
	}
}

// NewTokenStore creates a token store for cfg. The configuration is
// validated here; errors wrap ErrConfiguration. No token is requested until
// the first GetToken.
//
// ctx is kept, without its cancellation, as the context of Token() calls,
// so values such as oauth2.HTTPClient apply to them.
func NewTokenStore(ctx context.Context, cfg Config, opts ...Option) (*TokenStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = context.Background()
	} else {
		ctx = context.WithoutCancel(ctx)
	}

	s := &TokenStore{
		cfg:       cfg,
		ctx:       ctx,
		transport: &HTTPTransport{},
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Config returns the validated configuration.
func (s *TokenStore) Config() Config {
	return s.cfg
}

// GetToken returns a token that has not expired, requesting a new one if
// necessary. A warm cache never blocks.
//
// Callers that miss at the same time wait for one shared request and all
// receive the same *Token or the same error. A caller whose ctx ends stops
// waiting with an error wrapping ErrCancelled; the request itself continues
// for the other waiters.
//
// Errors wrap ErrNetwork or ErrUpstreamProtocol. A token that is already
// expired when it arrives is reported as ErrUpstreamProtocol and never cached.
// A failed refresh leaves the cache untouched.
func (s *TokenStore) GetToken(ctx context.Context) (*Token, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cached := s.token.Load()
	if cached != nil && !cached.Expired(s.now()) {
		return cached, nil
	}

	return s.refresh(ctx, cached)
}

// Refresh replaces rejected, typically a token the API answered 401 for,
// with a newly issued one. If another caller already replaced it, the
// current token is returned without a new request. A nil rejected refers to
// whatever is cached now.
func (s *TokenStore) Refresh(ctx context.Context, rejected *Token) (*Token, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if rejected == nil {
		rejected = s.token.Load()
	}

	tok, err := s.refresh(ctx, rejected)
	if err == nil && tok == rejected {
		// Joined a request that resolved to rejected through its own cache check.
		tok, err = s.refresh(ctx, rejected)
	}
	return tok, err
}

// Cached returns the cached token, expired or not, without refreshing.
func (s *TokenStore) Cached() (*Token, bool) {
	tok := s.token.Load()
	return tok, tok != nil
}

// Token implements oauth2.TokenSource using the constructor's context.
func (s *TokenStore) Token() (*oauth2.Token, error) {
	tok, err := s.GetToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return tok.OAuth2Token(), nil
}

// Grants returns how many token requests this store has issued.
func (s *TokenStore) Grants() int64 {
	return s.grants.Load()
}

// refresh joins the in-flight token request or starts one. stale is the
// token the caller found unusable.
func (s *TokenStore) refresh(ctx context.Context, stale *Token) (*Token, error) {
	ch := s.group.DoChan(refreshKey, func() (interface{}, error) {
		// Double-check: another request may have completed since the caller looked.
		if current := s.token.Load(); current != nil && current != stale && !current.Expired(s.now()) {
			return current, nil
		}
		return s.fetch(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Token), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
}

// fetch performs the grant exchange and replaces the cache slot on success.
func (s *TokenStore) fetch(ctx context.Context) (*Token, error) {
	s.grants.Add(1)

	req, err := s.newGrantRequest(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.transport.Do(ctx, req, s.cfg.Retry)
	if err != nil {
		s.logf("oauth2client: token request for client %s failed: %v", s.cfg.ClientID, err)
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGrantBody))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read token response: %w", ErrNetwork, err)
	}

	g, err := grant.Decode(body)
	if err != nil {
		s.logf("oauth2client: rejected token response for client %s: %v", s.cfg.ClientID, err)
		return nil, fmt.Errorf("%w: %w", ErrUpstreamProtocol, err)
	}

	limiter, err := ratelimit.New(s.cfg.Limits(), s.limiterOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	tok := newToken(g, limiter)
	if tok.Expired(s.now()) {
		s.logf("oauth2client: token issued at %s is already expired locally, check clock skew", tok.CreatedAt().UTC().Format(time.RFC3339))
		return nil, fmt.Errorf("%w: token already expired at issue (expires: %s)", ErrUpstreamProtocol, tok.ExpiresAt().UTC().Format(time.RFC3339))
	}
	s.token.Store(tok)

	s.logf("oauth2client: obtained new access token (expires: %s)", tok.ExpiresAt().UTC().Format(time.RFC3339))

	return tok, nil
}

func (s *TokenStore) newGrantRequest(ctx context.Context) (*http.Request, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.cfg.ClientID)
	form.Set("client_secret", s.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create token request: %w", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return req, nil
}

func (s *TokenStore) limiterOptions() []ratelimit.Option {
	opts := []ratelimit.Option{ratelimit.WithClock(s.now)}
	if s.logger != nil {
		opts = append(opts, ratelimit.WithLogger(s.logger))
	}
	return append(opts, s.limiterOpts...)
}

func (s *TokenStore) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
