package middleware

import (
	"context"
	"net/http"
	"strings"

	lifehelper "github.com/sengeiou/life-helper-server"
)

// SessionValidator verifies session tokens. [lifehelper.Engine] implements it.
type SessionValidator interface {
	ValidateSessionToken(ctx context.Context, token string) (*lifehelper.SessionInfo, error)
}

type sessionContextKey struct{}

// SessionFromContext returns the session injected by [Guard].
func SessionFromContext(ctx context.Context) (*lifehelper.SessionInfo, bool) {
	info, ok := ctx.Value(sessionContextKey{}).(*lifehelper.SessionInfo)
	return info, ok
}

// WithSession attaches info to ctx the way [Guard] does.
func WithSession(ctx context.Context, info *lifehelper.SessionInfo) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, info)
}

// Guard rejects requests without a valid bearer session token.
func Guard(validator SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			info, err := validator.ValidateSessionToken(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), info)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
