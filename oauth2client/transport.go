package oauth2client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
)

// maxErrorBody bounds how much of a failed response is kept in StatusError.
const maxErrorBody = 4 << 10

// Transport executes the token request under a retry policy. Implementations
// return a 2xx response or an error once the policy is exhausted.
type Transport interface {
	Do(ctx context.Context, req *http.Request, policy RetryPolicy) (*http.Response, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("oauth2client: token endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("oauth2client: token endpoint returned status %d: %s", e.StatusCode, e.Body)
}

var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// HTTPTransport is the default Transport. It retries network errors and
// retriable statuses with a constant delay.
type HTTPTransport struct {
	// Client sends the requests. If nil, the *http.Client stored in the
	// context under oauth2.HTTPClient is used, then a client with a 30s timeout.
	Client *http.Client
}

// Do implements Transport.
func (t *HTTPTransport) Do(ctx context.Context, req *http.Request, policy RetryPolicy) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client := t.client(ctx)

	retries := uint64(0)
	if policy.Attempts > 1 {
		retries = uint64(policy.Attempts - 1)
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Interval), retries),
		ctx,
	)

	var resp *http.Response
	operation := func() error {
		attempt, err := rewind(ctx, req)
		if err != nil {
			return backoff.Permanent(err)
		}

		r, err := client.Do(attempt)
		if err != nil {
			return err
		}

		if r.StatusCode >= 200 && r.StatusCode < 300 {
			resp = r
			return nil
		}

		statusErr := drain(r)
		if policy.Retriable != nil && policy.Retriable(r.StatusCode) {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}

	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *HTTPTransport) client(ctx context.Context) *http.Client {
	if t != nil && t.Client != nil {
		return t.Client
	}
	if c, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok && c != nil {
		return c
	}
	return defaultHTTPClient
}

// rewind clones req for one attempt with a fresh body.
func rewind(ctx context.Context, req *http.Request) (*http.Request, error) {
	attempt := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("oauth2client: failed to rewind request body: %w", err)
		}
		attempt.Body = body
	}
	return attempt, nil
}

func drain(r *http.Response) *StatusError {
	defer r.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(r.Body, maxErrorBody))
	return &StatusError{StatusCode: r.StatusCode, Body: string(body)}
}
