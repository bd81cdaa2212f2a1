package oauth2client

import (
	"errors"

	"github.com/AmmannChristian/go-tokengate/ratelimit"
)

var (
	// ErrNetwork wraps transport failures, including exhausted retries.
	ErrNetwork = errors.New("oauth2client: token request failed")

	// ErrUpstreamProtocol means the token endpoint answered with a body that
	// does not match the expected grant shape.
	ErrUpstreamProtocol = errors.New("oauth2client: token response does not match the expected shape")

	// ErrConfiguration is returned by Config.Validate and NewTokenStore.
	ErrConfiguration = errors.New("oauth2client: invalid configuration")

	// ErrCancelled is returned when the caller's context ends while waiting
	// for a refresh or for a rate-limit slot. It is the same value as
	// ratelimit.ErrCancelled.
	ErrCancelled = ratelimit.ErrCancelled

	// ErrNotJWT is returned by Token.Claims for opaque access tokens.
	ErrNotJWT = errors.New("oauth2client: access token is not a JWT")
)
