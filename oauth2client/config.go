package oauth2client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AmmannChristian/go-tokengate/ratelimit"
)

// TokenPath is appended to Config.BaseURL when TokenURL is empty.
const TokenPath = "/oauth/token"

// RetryPolicy controls how the token request is retried by a Transport.
type RetryPolicy struct {
	// Attempts is the maximum number of requests, including the first one.
	Attempts int
	// Interval is the fixed delay between attempts.
	Interval time.Duration
	// Retriable reports whether a response status should be retried.
	Retriable func(status int) bool
}

// DefaultRetryPolicy returns 3 attempts, 1s apart, retrying any status >= 400.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		Interval:  time.Second,
		Retriable: RetryOnErrorStatus,
	}
}

// RetryOnErrorStatus retries every 4xx and 5xx response.
func RetryOnErrorStatus(status int) bool {
	return status >= http.StatusBadRequest
}

// RetryOnServerError retries 429 and 5xx responses only.
func RetryOnServerError(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func (p RetryPolicy) validate() error {
	if p.Attempts < 1 {
		return fmt.Errorf("%w: retry attempts must be at least 1, got %d", ErrConfiguration, p.Attempts)
	}
	if p.Interval < 0 {
		return fmt.Errorf("%w: retry interval must not be negative, got %v", ErrConfiguration, p.Interval)
	}
	if p.Retriable == nil {
		return fmt.Errorf("%w: retry predicate is required", ErrConfiguration)
	}
	return nil
}

// Config describes one client-credentials identity and its quotas.
// Use NewConfig to start from the defaults; NewTokenStore does not fill in
// zero values.
type Config struct {
	// TokenURL is the token endpoint, e.g. "https://api.example.com/oauth/token".
	TokenURL string
	// BaseURL is used to derive TokenURL (BaseURL + TokenPath) when TokenURL is empty.
	BaseURL string

	ClientID     string
	ClientSecret string

	// RateLimitPerSecond is the burst ceiling of every issued token. Default 2.
	RateLimitPerSecond int
	// RateLimitPerHour is the volume ceiling of every issued token. Default 1200.
	RateLimitPerHour int

	Retry RetryPolicy
}

// NewConfig returns a Config with default quotas and retry policy.
func NewConfig(tokenURL, clientID, clientSecret string) Config {
	return Config{
		TokenURL:           tokenURL,
		ClientID:           clientID,
		ClientSecret:       clientSecret,
		RateLimitPerSecond: ratelimit.DefaultPerSecond,
		RateLimitPerHour:   ratelimit.DefaultPerHour,
		Retry:              DefaultRetryPolicy(),
	}
}

// Validate reports the first configuration problem, wrapped in ErrConfiguration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("%w: client ID is required", ErrConfiguration)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("%w: client secret is required", ErrConfiguration)
	}

	endpoint := c.Endpoint()
	if endpoint == "" {
		return fmt.Errorf("%w: token URL or base URL is required", ErrConfiguration)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: invalid token URL: %w", ErrConfiguration, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: token URL must be http or https, got %q", ErrConfiguration, endpoint)
	}

	if err := c.Limits().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return c.Retry.validate()
}

// Endpoint returns the effective token URL.
func (c Config) Endpoint() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	if c.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.BaseURL, "/") + TokenPath
}

// Limits returns the quotas applied to every issued token.
func (c Config) Limits() ratelimit.Limits {
	return ratelimit.Limits{
		PerSecond: c.RateLimitPerSecond,
		PerHour:   c.RateLimitPerHour,
	}
}
