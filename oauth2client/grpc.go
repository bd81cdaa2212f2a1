package oauth2client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/oauth"
	"google.golang.org/grpc/metadata"
)

// authorize fetches a token, takes one unit from its rate limiter and adds
// the bearer header to the outgoing metadata.
func (s *TokenStore) authorize(ctx context.Context) (context.Context, error) {
	tok, err := s.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("oauth2client: failed to get token: %w", err)
	}

	if err := tok.RateLimiter().Acquire(ctx); err != nil {
		return nil, fmt.Errorf("oauth2client: rate limit: %w", err)
	}

	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok.AccessToken()), nil
}

// UnaryClientInterceptor returns a gRPC unary client interceptor that adds
// "authorization: Bearer <token>" to the request metadata after taking one
// unit from the token's rate limiter.
//
// If the token fetch fails or the RPC context ends while waiting for quota,
// the call is aborted before reaching the server.
//
// Usage:
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithUnaryInterceptor(store.UnaryClientInterceptor()),
//	)
func (s *TokenStore) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, err := s.authorize(ctx)
		if err != nil {
			return err
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor. Each
// stream costs one rate-limit unit, regardless of how many messages it carries.
//
// Usage:
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithStreamInterceptor(store.StreamClientInterceptor()),
//	)
func (s *TokenStore) StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		ctx, err := s.authorize(ctx)
		if err != nil {
			return nil, err
		}
		return streamer(ctx, desc, cc, method, opts...)
	}
}

// PerRPCCredentials exposes the store as gRPC call credentials. Unlike the
// interceptors it does not consume rate-limit units, and it requires a
// secure transport.
func (s *TokenStore) PerRPCCredentials() credentials.PerRPCCredentials {
	return oauth.TokenSource{TokenSource: s}
}
