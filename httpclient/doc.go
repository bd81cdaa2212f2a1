// Package httpclient builds HTTP clients that authenticate with an
// oauth2client.TokenStore and pace their calls with the token's rate limiter.
//
// The Builder creates an http.Client whose OAuth2Transport fetches the current token, waits for
// one unit of its quota, and injects "Authorization: Bearer <token>". A 401 answer triggers one
// token refresh and one retry when the request body can be replayed. TLS (custom CA, mTLS,
// insecure for tests), timeouts, base transports and redirect handling are configurable.
//
// # Features
//
//   - Fluent builder for http.Client with token injection and rate limiting
//   - One refresh-and-retry on 401 for replayable requests
//   - TLS 1.2+ by default, with custom CA/mTLS and optional InsecureSkipVerify
//   - Custom timeouts, base transport override, and redirect disabling
//   - Reusable OAuth2Transport for manual composition
//
// # Quick Start
//
//	cfg := oauth2client.NewConfig("https://api.example.com/oauth/token", "client-id", "client-secret")
//
//	client, err := httpclient.NewBuilder().
//	    WithClientCredentials(ctx, cfg).
//	    WithTLS("/path/to/ca.crt", "", "").
//	    WithTimeout(60 * time.Second).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Get("https://api.example.com/data")
//
// The client timeout covers the time spent waiting for quota.
//
// # Manual Transport Wrapping
//
//	transport := httpclient.NewOAuth2Transport(store, nil)
//	client := &http.Client{Transport: transport}
//
// All components are safe for concurrent use.
package httpclient
