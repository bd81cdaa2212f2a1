package testutil

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// NewLocalHTTPServer starts an HTTP server bound to IPv4 loopback only.
// The sandbox blocks IPv6 listeners, so force tcp4 to keep tests runnable.
func NewLocalHTTPServer(tb testing.TB, handler http.Handler) *httptest.Server {
	tb.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to create IPv4 listener: %v", err)
	}

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()
	tb.Cleanup(server.Close)

	return server
}

// RoundTripFunc allows inlining http.RoundTripper implementations.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls the underlying function.
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// MockOAuth2Server simulates a token endpoint without real sockets.
// It records requests and serves responses through a custom RoundTripper.
type MockOAuth2Server struct {
	URL string
	// Ctx carries the mock client under oauth2.HTTPClient.
	Ctx    context.Context
	Client *http.Client

	mu       sync.Mutex
	requests []*http.Request
	forms    []url.Values
}

// NewMockOAuth2Server builds a mock token endpoint backed by an in-memory RoundTripper.
// If handler is nil, it returns DefaultGrant. http.DefaultTransport and
// http.DefaultClient point at the mock until the test ends.
func NewMockOAuth2Server(tb testing.TB, handler RoundTripFunc) *MockOAuth2Server {
	tb.Helper()

	server := &MockOAuth2Server{
		URL: "https://mock-oauth.example.com",
	}

	if handler == nil {
		handler = StaticJSONResponse(DefaultGrant())
	}

	rt := RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		server.record(req)
		return handler(req)
	})

	prevTransport := http.DefaultTransport
	prevClient := http.DefaultClient
	http.DefaultTransport = rt
	http.DefaultClient = &http.Client{Transport: rt}
	tb.Cleanup(func() {
		http.DefaultTransport = prevTransport
		http.DefaultClient = prevClient
	})

	server.Client = &http.Client{Transport: rt}
	server.Ctx = context.WithValue(context.Background(), oauth2.HTTPClient, server.Client)

	return server
}

// TokenURL returns the conventional token endpoint of the mock.
func (m *MockOAuth2Server) TokenURL() string {
	return m.URL + "/oauth/token"
}

// Close is a no-op to mirror httptest.Server usage in tests.
func (m *MockOAuth2Server) Close() {}

// RequestCount returns the number of requests served so far.
func (m *MockOAuth2Server) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the recorded requests. Their bodies have been consumed.
func (m *MockOAuth2Server) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*http.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Forms returns the decoded form bodies of the recorded requests.
func (m *MockOAuth2Server) Forms() []url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]url.Values, len(m.forms))
	copy(out, m.forms)
	return out
}

func (m *MockOAuth2Server) record(req *http.Request) {
	form := url.Values{}
	if req.Body != nil {
		body, _ := io.ReadAll(req.Body)
		_ = req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(body))
		if parsed, err := url.ParseQuery(string(body)); err == nil {
			form = parsed
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	m.forms = append(m.forms, form)
}

// Grant is a token response body. Nil fields are omitted from the JSON.
type Grant struct {
	AccessToken *string `json:"access_token,omitempty"`
	TokenType   *string `json:"token_type,omitempty"`
	ExpiresIn   *int64  `json:"expires_in,omitempty"`
	Scope       *string `json:"scope,omitempty"`
	CreatedAt   *int64  `json:"created_at,omitempty"`
}

// NewGrant builds a complete token response.
func NewGrant(accessToken string, expiresIn int64, createdAt time.Time) *Grant {
	tokenType := "bearer"
	scope := "read"
	created := createdAt.Unix()
	return &Grant{
		AccessToken: &accessToken,
		TokenType:   &tokenType,
		ExpiresIn:   &expiresIn,
		Scope:       &scope,
		CreatedAt:   &created,
	}
}

// Without drops a field by its JSON name.
func (g *Grant) Without(field string) *Grant {
	switch field {
	case "access_token":
		g.AccessToken = nil
	case "token_type":
		g.TokenType = nil
	case "expires_in":
		g.ExpiresIn = nil
	case "scope":
		g.Scope = nil
	case "created_at":
		g.CreatedAt = nil
	}
	return g
}

// WithScope replaces the scope.
func (g *Grant) WithScope(scope string) *Grant {
	g.Scope = &scope
	return g
}

// JSON encodes the grant.
func (g *Grant) JSON() string {
	data, err := json.Marshal(g)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal grant: %v", err))
	}
	return string(data)
}

// DefaultGrant is a one-hour token issued now.
func DefaultGrant() string {
	return NewGrant("mock-access-token", 3600, time.Now()).JSON()
}

// StaticJSONResponse returns a RoundTripper that always responds 200 with the provided JSON body.
func StaticJSONResponse(body string) RoundTripFunc {
	return JSONResponse(http.StatusOK, body)
}

// JSONResponse returns a RoundTripper that always responds with status and body.
func JSONResponse(status int, body string) RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		return NewResponse(req, status, body), nil
	}
}

// NewResponse builds an in-memory JSON response for req.
func NewResponse(req *http.Request, status int, body string) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

// SignedJWT returns an HS256 token carrying claims, for tests that need a
// JWT-shaped access token.
func SignedJWT(tb testing.TB, claims jwt.MapClaims) string {
	tb.Helper()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		tb.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// WriteTestCACert writes a self-signed CA certificate to the provided path for TLS tests.
func WriteTestCACert(tb testing.TB, path string) {
	tb.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate CA key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		Subject:               pkix.Name{CommonName: "test-ca"},
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		tb.Fatalf("failed to create CA certificate: %v", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		tb.Fatalf("failed to write CA certificate: %v", err)
	}
}

// WriteTestCertAndKey writes a self-signed certificate and key to the provided paths.
func WriteTestCertAndKey(tb testing.TB, certPath, keyPath string) {
	tb.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		Subject:      pkix.Name{CommonName: "test-cert"},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		tb.Fatalf("failed to create certificate: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		tb.Fatalf("failed to write certificate: %v", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		tb.Fatalf("failed to write key: %v", err)
	}
}
