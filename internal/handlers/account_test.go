package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/snackworks/api/internal/platform/auth"
	"github.com/snackworks/api/internal/services"
)

func TestAccountHandlersRequestDeletion(t *testing.T) {
	router := chi.NewRouter()
	var requested string
	handler := NewAccountHandlers(nil, &stubUserService{
		requestDeletionFunc: func(_ context.Context, userID string) error {
			requested = userID
			return nil
		},
	})
	router.Route("/account", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/account/request-deletion", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if requested != "user-1" {
		t.Fatalf("requested uid = %q, want user-1", requested)
	}
}

func TestAccountHandlersRequestDeletionEmailDelayed(t *testing.T) {
	router := chi.NewRouter()
	handler := NewAccountHandlers(nil, &stubUserService{
		requestDeletionFunc: func(context.Context, string) error {
			return services.ErrNotificationPublishFailed
		},
	})
	router.Route("/account", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/account/request-deletion", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	// Code stored but email undeliverable: still accepted.
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}
}

func TestAccountHandlersConfirmDeletion(t *testing.T) {
	router := chi.NewRouter()
	var confirmedCode string
	handler := NewAccountHandlers(nil, &stubUserService{
		confirmDeletionFunc: func(_ context.Context, _ string, code string) error {
			confirmedCode = code
			return nil
		},
	})
	router.Route("/account", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/account/confirm-deletion", bytes.NewBufferString(`{"code":"123456"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if confirmedCode != "123456" {
		t.Fatalf("code = %q, want 123456", confirmedCode)
	}
}

func TestAccountHandlersConfirmDeletionBadCode(t *testing.T) {
	router := chi.NewRouter()
	handler := NewAccountHandlers(nil, &stubUserService{
		confirmDeletionFunc: func(context.Context, string, string) error {
			return services.ErrDeletionCodeInvalid
		},
	})
	router.Route("/account", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/account/confirm-deletion", bytes.NewBufferString(`{"code":"000000"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestAccountHandlersUnauthenticated(t *testing.T) {
	router := chi.NewRouter()
	handler := NewAccountHandlers(nil, &stubUserService{})
	router.Route("/account", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/account/request-deletion", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}
