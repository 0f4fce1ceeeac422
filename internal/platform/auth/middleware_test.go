package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareDisabledModeIsClosed(t *testing.T) {
	var called bool
	handler := Middleware{}.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/plans/p1/reactivate", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if called {
		t.Fatalf("handler must not run without an authenticator")
	}
}

func TestMiddlewarePassesIdentity(t *testing.T) {
	m := Middleware{Authenticator: DevAuthenticator{Subject: "ops@example.com"}}
	var got Identity
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/plans/p1/reactivate", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got.Subject != "ops@example.com" {
		t.Fatalf("subject = %q", got.Subject)
	}
}

type failingAuthenticator struct{}

func (failingAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	return Identity{}, ErrUnauthenticated
}

func TestMiddlewareRejectsBadCredentials(t *testing.T) {
	m := Middleware{Authenticator: failingAuthenticator{}}
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/plans/p1/reactivate", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
