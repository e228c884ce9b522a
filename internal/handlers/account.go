package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/snackworks/api/internal/platform/auth"
	"github.com/snackworks/api/internal/platform/httpx"
	"github.com/snackworks/api/internal/services"
)

const maxAccountBodySize = 8 * 1024

// AccountHandlers serves profile bootstrap and the account-deletion flow.
type AccountHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewAccountHandlers constructs an AccountHandlers instance.
func NewAccountHandlers(authn *auth.Authenticator, users services.UserService) *AccountHandlers {
	return &AccountHandlers{
		authn: authn,
		users: users,
	}
}

// Routes registers the authenticated account endpoints.
func (h *AccountHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/profile", h.ensureProfile)
	r.Post("/request-deletion", h.requestDeletion)
	r.Post("/confirm-deletion", h.confirmDeletion)
}

type ensureProfileRequest struct {
	Phone       string `json:"phone"`
	DisplayName string `json:"display_name"`
}

func (h *AccountHandlers) ensureProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	// A body is optional here: a bare call still creates the profile from
	// the token claims.
	var req ensureProfileRequest
	if r.ContentLength > 0 {
		if !decodeJSONBody(w, r, maxAccountBodySize, &req) {
			return
		}
	}

	user, err := h.users.EnsureProfile(ctx, services.EnsureProfileCommand{
		UID:         identity.UID,
		Email:       identity.Email,
		Phone:       req.Phone,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"uid":          user.UID,
		"email":        user.Email,
		"phone":        user.Phone,
		"display_name": user.DisplayName,
	})
}

func (h *AccountHandlers) requestDeletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	if err := h.users.RequestDeletion(ctx, identity.UID); err != nil {
		// A stored code with a failed email still lets the user retry; the
		// pipeline failure is reported so the client can explain the delay.
		if errors.Is(err, services.ErrNotificationPublishFailed) {
			writeJSONResponse(w, http.StatusAccepted, map[string]any{
				"status": "code_generated",
				"detail": "verification email is delayed",
			})
			return
		}
		writeAccountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusAccepted, map[string]any{"status": "code_sent"})
}

type confirmDeletionRequest struct {
	Code string `json:"code"`
}

func (h *AccountHandlers) confirmDeletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req confirmDeletionRequest
	if !decodeJSONBody(w, r, maxAccountBodySize, &req) {
		return
	}

	if err := h.users.ConfirmDeletion(ctx, identity.UID, strings.TrimSpace(req.Code)); err != nil {
		writeAccountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func writeAccountError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDeletionCodeInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("code_invalid", "deletion code is wrong or expired", http.StatusForbidden))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("account_not_found", "account not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("account_error", "failed to process account request", http.StatusInternalServerError))
	}
}
