package grpcclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/AmmannChristian/go-tokengate/internal/tlsconfig"
	"github.com/AmmannChristian/go-tokengate/oauth2client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Builder provides a fluent interface for constructing gRPC client connections
// with OAuth2 authentication, per-token rate limiting and TLS/mTLS support.
type Builder struct {
	address string

	// OAuth2 configuration
	store     *oauth2client.TokenStore
	storeCfg  *oauth2client.Config
	storeOpts []oauth2client.Option

	// TLS configuration
	tlsEnabled    bool
	tlsCAFile     string
	tlsCertFile   string
	tlsKeyFile    string
	tlsServerName string
	plaintext     bool

	// Additional dial options
	dialOpts []grpc.DialOption
}

// NewBuilder creates a new gRPC client builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithAddress sets the server address (e.g., "server.example.com:9090").
func (b *Builder) WithAddress(address string) *Builder {
	b.address = address
	return b
}

// WithTokenStore authenticates calls with an existing store. Connections
// sharing a store share its token and its quota.
func (b *Builder) WithTokenStore(store *oauth2client.TokenStore) *Builder {
	b.store = store
	b.storeCfg = nil
	return b
}

// WithClientCredentials creates a TokenStore for cfg when Build is called.
// Configuration errors are reported by Build.
func (b *Builder) WithClientCredentials(cfg oauth2client.Config, opts ...oauth2client.Option) *Builder {
	b.store = nil
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
//   - serverName: Expected server name for TLS verification (optional, overrides SNI)
func (b *Builder) WithTLS(caFile, certFile, keyFile, serverName string) *Builder {
	b.tlsEnabled = true
	b.plaintext = false
	b.tlsCAFile = caFile
	b.tlsCertFile = certFile
	b.tlsKeyFile = keyFile
	b.tlsServerName = serverName
	return b
}

// WithInsecure disables transport security (NOT RECOMMENDED for production).
// The bearer token is then sent in clear text.
func (b *Builder) WithInsecure() *Builder {
	b.plaintext = true
	b.tlsEnabled = false
	return b
}

// WithDialOptions adds custom gRPC dial options.
// These options are applied after OAuth2 and TLS options.
func (b *Builder) WithDialOptions(opts ...grpc.DialOption) *Builder {
	b.dialOpts = append(b.dialOpts, opts...)
	return b
}

// TokenStore returns the store used for authentication, including one
// created by Build from client credentials.
func (b *Builder) TokenStore() *oauth2client.TokenStore {
	return b.store
}

// Build constructs the gRPC client connection with the configured options.
// ctx is kept by a TokenStore created from client credentials.
//
// Returns:
//   - *grpc.ClientConn: Client connection, connected lazily by gRPC
//   - error: Error if the configuration is invalid
func (b *Builder) Build(ctx context.Context) (*grpc.ClientConn, error) {
	if b.address == "" {
		return nil, errors.New("grpcclient: server address is required")
	}

	var opts []grpc.DialOption

	if b.storeCfg != nil {
		store, err := oauth2client.NewTokenStore(ctx, *b.storeCfg, b.storeOpts...)
		if err != nil {
			return nil, fmt.Errorf("grpcclient: %w", err)
		}
		b.store = store
		b.storeCfg = nil
	}

	if b.store != nil {
		opts = append(opts,
			grpc.WithUnaryInterceptor(b.store.UnaryClientInterceptor()),
			grpc.WithStreamInterceptor(b.store.StreamClientInterceptor()),
		)
	}

	switch {
	case b.plaintext:
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	case b.tlsEnabled:
		tlsConfig, err := b.buildTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("grpcclient: TLS config failed: %w", err)
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	default:
		// Default to TLS with system roots to avoid accidental plaintext connections.
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})))
	}

	opts = append(opts, b.dialOpts...)

	conn, err := grpc.NewClient(b.address, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpcclient: dial failed: %w", err)
	}

	return conn, nil
}

// buildTLSConfig constructs the TLS configuration for the gRPC connection.
func (b *Builder) buildTLSConfig() (*tls.Config, error) {
	return tlsconfig.Build(tlsconfig.Options{
		CAFile:     b.tlsCAFile,
		CertFile:   b.tlsCertFile,
		KeyFile:    b.tlsKeyFile,
		ServerName: b.tlsServerName,
	})
}
