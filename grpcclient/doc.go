// Package grpcclient provides a fluent builder for secure gRPC client connections authenticated
// by an oauth2client.TokenStore.
//
// It defaults to TLS 1.2+ using system roots to avoid accidental plaintext connections. The
// unary and stream interceptors of the store attach the bearer token and take one unit of the
// token's rate limit per call, so a connection never exceeds the client's quota.
//
// # Features
//
//   - Fluent builder for gRPC clients
//   - Client-credentials authentication and rate limiting via oauth2client
//   - Secure-by-default TLS; optional custom CA and mTLS
//   - Additional dial options via WithDialOptions
//
// # Quick Start
//
//	cfg := oauth2client.NewConfig("https://api.example.com/oauth/token", "client-id", "client-secret")
//
//	conn, err := grpcclient.NewBuilder().
//	    WithAddress("server.example.com:9090").
//	    WithClientCredentials(cfg).
//	    WithTLS("/path/to/ca.crt", "", "", "server.example.com").
//	    Build(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	client := pb.NewYourServiceClient(conn)
//
// # TLS Behavior
//
// TLS is enabled by default with system CAs and TLS 1.2 minimum. WithTLS allows supplying a custom
// root CA and optional client cert/key for mTLS; both cert and key must be provided together.
// WithInsecure switches to plaintext for local development.
package grpcclient
