// Package tlsconfig builds client TLS configurations from PEM files.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ErrIncompleteKeyPair is returned when only one of cert and key is given.
var ErrIncompleteKeyPair = errors.New("both TLS cert and key files must be provided for mTLS")

// Options selects the files and overrides of a client TLS configuration.
type Options struct {
	// CAFile verifies the server. System roots are used when empty.
	CAFile string
	// CertFile and KeyFile enable mTLS. Both or neither.
	CertFile string
	KeyFile  string
	// ServerName overrides the name checked against the server certificate.
	ServerName string
	// InsecureSkipVerify disables certificate verification. Testing only.
	InsecureSkipVerify bool
}

// Build returns a TLS 1.2+ client configuration for opts.
func Build(opts Options) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         opts.ServerName,
		InsecureSkipVerify: opts.InsecureSkipVerify, // #nosec G402
	}

	if opts.CAFile != "" {
		caCert, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}

		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		cfg.RootCAs = certPool
	}

	switch {
	case opts.CertFile != "" && opts.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	case opts.CertFile != "" || opts.KeyFile != "":
		return nil, ErrIncompleteKeyPair
	}

	return cfg, nil
}
