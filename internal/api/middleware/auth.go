// Package middleware provides HTTP middleware components for the tsio API.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/tsio/tsio/internal/auth"
)

// Authenticate runs chain against every request and attaches the resulting
// Caller (or the failure reason) to the request context. It never rejects a
// request itself: public endpoints need no Caller at all, and the minimum
// role differs per endpoint, so enforcement happens in each handler via
// Caller.AtLeast (spec §4.2, §6).
func Authenticate(chain *auth.Chain, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := chain.Authenticate(r.Context(), r)

			ctx := r.Context()
			if err != nil {
				logger.Debug("auth: no caller resolved",
					slog.String("error", err.Error()),
					slog.String("path", r.URL.Path),
					slog.String("correlation_id", GetCorrelationID(r.Context())),
				)

				ctx = setAuthError(ctx, err)
			} else {
				logger.Debug("auth: caller resolved",
					slog.String("caller_id", caller.ID),
					slog.String("kind", string(caller.Kind)),
					slog.String("role", string(caller.Role)),
					slog.String("correlation_id", GetCorrelationID(r.Context())),
				)

				ctx = SetCaller(ctx, caller)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
