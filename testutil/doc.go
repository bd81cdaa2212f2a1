// Package testutil provides test helpers for go-tokengate packages and their consumers.
//
// It mocks the client-credentials token endpoint without real sockets, builds token responses
// with any required field left out, and generates certificates for TLS/mTLS tests.
//
// # Utilities
//
//   - MockOAuth2Server: in-memory token endpoint that counts requests and captures form bodies
//   - NewGrant / Grant.Without: token response bodies, complete or deliberately broken
//   - StaticJSONResponse, JSONResponse, NewResponse, RoundTripFunc: inline RoundTrippers
//   - NewLocalHTTPServer: httptest server bound to 127.0.0.1
//   - SignedJWT: HS256 access tokens for claim inspection tests
//   - WriteTestCACert / WriteTestCertAndKey: temporary CA and leaf certificates
//
// MockOAuth2Server replaces http.DefaultClient and http.DefaultTransport for the duration of a
// test and restores them via tb.Cleanup; tests using it must not run in parallel.
package testutil
