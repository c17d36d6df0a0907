package main

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/PaulBabatuyi/marketChat-gRPC/internal/auth"
)

// context key type for storing auth claims in context
type authContextKey struct{}

// getClaimsFromContext extracts auth claims from the context, if present.
func getClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	v := ctx.Value(authContextKey{})
	if v == nil {
		return nil, false
	}
	c, ok := v.(*auth.Claims)
	return c, ok
}

// userIDFromContext is the rate limiter key of an authenticated call.
func userIDFromContext(ctx context.Context) string {
	if c, ok := getClaimsFromContext(ctx); ok {
		return c.UserID
	}
	return ""
}

// verify reads the bearer token from the incoming metadata and validates it.
func verify(ctx context.Context, j *auth.JWTManager) (*auth.Claims, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Errorf(codes.Unauthenticated, "missing metadata")
	}
	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		return nil, status.Errorf(codes.Unauthenticated, "missing authorization header")
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeaders[0], "Bearer"))
	if token == "" {
		return nil, status.Errorf(codes.Unauthenticated, "invalid token")
	}

	claims, err := j.VerifyToken(token)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "unauthenticated: %v", err)
	}
	return claims, nil
}

// authUnaryInterceptor returns a UnaryServerInterceptor that enforces JWT
// authentication. Tokens are issued elsewhere; every method requires one.
func authUnaryInterceptor(j *auth.JWTManager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		claims, err := verify(ctx, j)
		if err != nil {
			return nil, err
		}
		// attach claims into context for handlers
		ctx = context.WithValue(ctx, authContextKey{}, claims)
		return handler(ctx, req)
	}
}

// authStreamInterceptor is the stream equivalent of authUnaryInterceptor.
func authStreamInterceptor(j *auth.JWTManager) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		claims, err := verify(ss.Context(), j)
		if err != nil {
			return err
		}
		// wrap stream context with claims
		newCtx := context.WithValue(ss.Context(), authContextKey{}, claims)
		wrapped := grpcmiddlewareServerStream{ServerStream: ss, ctx: newCtx}
		return handler(srv, wrapped)
	}
}

// grpcmiddlewareServerStream wraps grpc.ServerStream to override Context()
type grpcmiddlewareServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context (with claims)
func (g grpcmiddlewareServerStream) Context() context.Context { return g.ctx }

// claims returns the caller's claims or an Unauthenticated status.
func claims(ctx context.Context) (*auth.Claims, error) {
	c, ok := getClaimsFromContext(ctx)
	if !ok || c.UserID == "" {
		return nil, status.Errorf(codes.Unauthenticated, "missing auth claims")
	}
	return c, nil
}
