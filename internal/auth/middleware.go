package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

type contextKey string

const operatorKey contextKey = "operator"

// Middleware authenticates the scanning operator and stores the identity in
// the request context. Any request without a valid operator token is
// rejected before it reaches a handler.
func Middleware(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := ExtractTokenFromRequest(r)
			if err != nil {
				http.Error(w, "authorization required: "+err.Error(), http.StatusUnauthorized)
				return
			}

			operator, err := ParseOperatorToken(tokenString, secret)
			if err != nil {
				if log != nil {
					log.LogSecurity("TOKEN_REJECTED", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				}
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey, *operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFromContext returns the authenticated operator, if any.
func OperatorFromContext(ctx context.Context) (models.Operator, bool) {
	operator, ok := ctx.Value(operatorKey).(models.Operator)
	return operator, ok
}

// WithOperator injects an operator into a context. Tests and internal
// callers use it in place of the middleware.
func WithOperator(ctx context.Context, operator models.Operator) context.Context {
	return context.WithValue(ctx, operatorKey, operator)
}
