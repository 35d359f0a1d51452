package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	shopauth "github.com/mfaulken/shopauth"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the validated identity injected by [Auth].
func AuthResultFromContext(ctx context.Context) (*shopauth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*shopauth.AuthResult)
	return res, ok
}

// Auth validates the request's bearer access token and stores the result in
// the request context for downstream handlers.
func Auth(engine *shopauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Throttle runs the engine's throttle guard ahead of next. Requests that hit
// their profile's budget are answered with 429; requests matching no guarded
// route pass straight through.
func Throttle(engine *shopauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil || engine.Guard() == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			if shopauth.CorrelationIDFromContext(ctx) == "" {
				ctx = shopauth.WithCorrelationID(ctx, uuid.NewString())
			}

			ctx, err := engine.Guard().Check(ctx, r)
			if err != nil {
				if errors.Is(err, shopauth.ErrRateLimitExceeded) {
					http.Error(w, "too many requests", http.StatusTooManyRequests)
					return
				}
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
