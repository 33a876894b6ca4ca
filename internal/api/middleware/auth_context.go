// Package middleware provides HTTP middleware components for the tsio API.
package middleware

import (
	"context"

	"github.com/tsio/tsio/internal/auth"
)

type (
	callerKey  struct{}
	authErrKey struct{}
)

// SetCaller attaches the resolved Caller (nil if the request carried no
// credential) to ctx, mirroring the correlation ID context idiom.
func SetCaller(ctx context.Context, caller *auth.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// GetCaller returns the Caller attached by the auth middleware, or nil if the
// request was unauthenticated.
func GetCaller(ctx context.Context) *auth.Caller {
	caller, _ := ctx.Value(callerKey{}).(*auth.Caller)

	return caller
}

// setAuthError records why authentication did not produce a Caller, so a
// handler rejecting the request can choose between "Missing credentials" and
// "Invalid token" (spec §7).
func setAuthError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, authErrKey{}, err)
}

// GetAuthError returns the error the auth Chain produced for this request,
// or nil if a Caller was resolved.
func GetAuthError(ctx context.Context) error {
	err, _ := ctx.Value(authErrKey{}).(error)

	return err
}
