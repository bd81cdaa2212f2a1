// Package oauth2client issues, caches and refreshes an OAuth2 client-credentials access token
// for a single client identity, and attaches a dual-window rate limiter to every issued token.
//
// A TokenStore holds at most one Token. GetToken returns it while it is unexpired and otherwise
// performs the grant exchange; callers that miss at the same time share one request. Each Token
// carries its own ratelimit.RateLimiter, which is discarded with the token on refresh.
//
// # Features
//
//   - Client-credentials grant (form-encoded client_id/client_secret) with retries
//   - Coalesced refresh: N concurrent misses cause exactly one token request
//   - Expiry floored to the whole second; a token is never used past its stated lifetime
//   - Per-token rate limiting: burst per second and volume per hour
//   - Context-aware waits; a cancelled caller never aborts a refresh shared with others
//   - gRPC unary and stream client interceptors, per-RPC credentials, oauth2.TokenSource
//   - Optional logging (WithLogger, WithLoggingEnabled)
//
// # Quick Start
//
//	cfg := oauth2client.NewConfig("https://api.example.com/oauth/token", "client-id", "client-secret")
//	cfg.RateLimitPerHour = 600
//
//	store, err := oauth2client.NewTokenStore(ctx, cfg, oauth2client.WithLoggingEnabled())
//	if err != nil {
//	    log.Fatal(err) // wraps oauth2client.ErrConfiguration
//	}
//
//	tok, err := store.GetToken(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := tok.RateLimiter().Acquire(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	req.Header.Set("Authorization", "Bearer "+tok.AccessToken())
//
// # Errors
//
//   - ErrNetwork: the token request failed after the retry policy was exhausted
//   - ErrUpstreamProtocol: the token response lacks a required field
//   - ErrCancelled: the caller's context ended while waiting
//   - ErrConfiguration: invalid Config, reported by NewTokenStore
package oauth2client
