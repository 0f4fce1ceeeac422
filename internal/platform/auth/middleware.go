package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

type ctxKeyIdentity struct{}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}

// Middleware guards operator endpoints. In disabled mode it rejects
// everything: an unconfigured operator surface is closed, not open.
type Middleware struct {
	Logger        *slog.Logger
	Authenticator Authenticator
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Authenticator == nil {
			m.deny(w, r, http.StatusForbidden, "operator access disabled", nil)
			return
		}
		identity, err := m.Authenticator.Authenticate(r.Context(), r)
		if err != nil {
			status := http.StatusUnauthorized
			reason := "invalid_token"
			if errors.Is(err, ErrUnauthenticated) {
				reason = "unauthenticated"
			}
			m.deny(w, r, status, reason, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyIdentity{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, status int, reason string, err error) {
	if m.Logger != nil {
		m.Logger.Warn("operator auth denied",
			"status", status,
			"reason", reason,
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":      "unauthorized",
		"request_id": r.Header.Get("X-Request-Id"),
	})
}
