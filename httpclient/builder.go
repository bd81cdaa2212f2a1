package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/AmmannChristian/go-tokengate/internal/tlsconfig"
	"github.com/AmmannChristian/go-tokengate/oauth2client"
)

// Builder provides a fluent interface for constructing HTTP clients
// with OAuth2 authentication, per-token rate limiting and TLS/mTLS support.
type Builder struct {
	// OAuth2 configuration
	store     *oauth2client.TokenStore
	storeCtx  context.Context
	storeCfg  *oauth2client.Config
	storeOpts []oauth2client.Option

	// TLS configuration
	tlsEnabled    bool
	tlsCAFile     string
	tlsCertFile   string
	tlsKeyFile    string
	tlsSkipVerify bool

	// HTTP client configuration
	timeout         time.Duration
	baseTransport   http.RoundTripper
	followRedirects bool
	skipRateLimit   bool
}

// NewBuilder creates a new HTTP client builder.
func NewBuilder() *Builder {
	return &Builder{
		timeout:         30 * time.Second, // Default 30s timeout
		followRedirects: true,
	}
}

// WithTokenStore authenticates requests with an existing store. Clients
// sharing a store share its token and its quota.
func (b *Builder) WithTokenStore(store *oauth2client.TokenStore) *Builder {
	b.store = store
	b.storeCfg = nil
	return b
}

// WithClientCredentials creates a TokenStore for cfg when Build is called.
// Configuration errors are reported by Build.
//
// Parameters:
//   - ctx: Context kept for token requests made through oauth2.TokenSource
//   - cfg: Client identity, token endpoint and quotas (see oauth2client.NewConfig)
//   - opts: Options for the created TokenStore
func (b *Builder) WithClientCredentials(ctx context.Context, cfg oauth2client.Config, opts ...oauth2client.Option) *Builder {
	b.store = nil
	b.storeCtx = ctx
	b.storeCfg = &cfg
	b.storeOpts = opts
	return b
}

// WithTLS enables TLS for the connection.
//
// Parameters:
//   - caFile: Path to CA certificate for server verification (optional, uses system roots if empty)
//   - certFile: Path to client certificate for mTLS (optional, must be paired with keyFile)
//   - keyFile: Path to client private key for mTLS (optional, must be paired with certFile)
func (b *Builder) WithTLS(caFile, certFile, keyFile string) *Builder {
	b.tlsEnabled = true
	b.tlsCAFile = caFile
	b.tlsCertFile = certFile
	b.tlsKeyFile = keyFile
	return b
}

// WithInsecureSkipVerify disables TLS certificate verification (NOT RECOMMENDED for production).
// This should only be used for testing or development purposes.
func (b *Builder) WithInsecureSkipVerify() *Builder {
	b.tlsSkipVerify = true
	return b
}

// WithTimeout sets the request timeout for the HTTP client, including any
// time spent waiting for rate-limit quota.
// Default is 30 seconds if not specified.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// WithBaseTransport sets a custom base transport.
// This is useful for adding custom middleware or using a custom connection pool.
func (b *Builder) WithBaseTransport(transport http.RoundTripper) *Builder {
	b.baseTransport = transport
	return b
}

// WithoutRedirects disables automatic redirect following.
// By default, the client follows up to 10 redirects.
func (b *Builder) WithoutRedirects() *Builder {
	b.followRedirects = false
	return b
}

// WithoutRateLimit attaches tokens without acquiring quota. Use it when
// another layer already paces the calls.
func (b *Builder) WithoutRateLimit() *Builder {
	b.skipRateLimit = true
	return b
}

// Build constructs the HTTP client with the configured options.
//
// Returns:
//   - *http.Client: Configured HTTP client
//   - error: Error if TLS or OAuth2 configuration is invalid
func (b *Builder) Build() (*http.Client, error) {
	transport, err := b.buildBaseTransport()
	if err != nil {
		return nil, err
	}

	store, err := b.tokenStore()
	if err != nil {
		return nil, err
	}
	if store != nil {
		transport = &OAuth2Transport{
			Base:          transport,
			Store:         store,
			SkipRateLimit: b.skipRateLimit,
		}
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   b.timeout,
	}

	if !b.followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client, nil
}

func (b *Builder) tokenStore() (*oauth2client.TokenStore, error) {
	if b.store != nil || b.storeCfg == nil {
		return b.store, nil
	}

	store, err := oauth2client.NewTokenStore(b.storeCtx, *b.storeCfg, b.storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return store, nil
}

func (b *Builder) buildBaseTransport() (http.RoundTripper, error) {
	if b.baseTransport != nil {
		return b.baseTransport, nil
	}

	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		// Whatever default transport is configured (e.g., a test stub)
		return http.DefaultTransport, nil
	}
	httpTransport := base.Clone()

	if b.tlsEnabled || b.tlsSkipVerify {
		tlsConfig, err := b.buildTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("httpclient: TLS config failed: %w", err)
		}
		httpTransport.TLSClientConfig = tlsConfig
	} else {
		// Set secure TLS defaults even when TLS is not explicitly configured
		httpTransport.TLSClientConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return httpTransport, nil
}

// buildTLSConfig constructs the TLS configuration for the HTTP client.
func (b *Builder) buildTLSConfig() (*tls.Config, error) {
	return tlsconfig.Build(tlsconfig.Options{
		CAFile:             b.tlsCAFile,
		CertFile:           b.tlsCertFile,
		KeyFile:            b.tlsKeyFile,
		InsecureSkipVerify: b.tlsSkipVerify,
	})
}

// NewHTTPClient is a convenience function that creates a simple HTTP client with OAuth2
// authentication and rate limiting. For more configuration options, use Builder instead.
//
// Example:
//
//	store, err := oauth2client.NewTokenStore(ctx, oauth2client.NewConfig(tokenURL, clientID, clientSecret))
//	client := httpclient.NewHTTPClient(store)
//	resp, err := client.Get("https://api.example.com/data")
func NewHTTPClient(store *oauth2client.TokenStore) *http.Client {
	transport := NewOAuth2Transport(store, nil)
	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}
