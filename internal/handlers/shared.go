package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/snackworks/api/internal/domain"
	"github.com/snackworks/api/internal/platform/auth"
	"github.com/snackworks/api/internal/platform/httpx"
	"github.com/snackworks/api/internal/platform/pagination"
)

const defaultMaxBodySize = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads and unmarshals the request body, writing the
// appropriate error envelope itself when it fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

// requireIdentity extracts the authenticated identity or writes a 401.
func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// parsePagination validates page_size and page_token, writing the 400
// envelope itself when either is malformed.
func parsePagination(w http.ResponseWriter, r *http.Request) (domain.Pagination, bool) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_pagination", "invalid pagination parameters", http.StatusBadRequest))
		return domain.Pagination{}, false
	}
	return domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// cartLinePayload is a single cart entry in request and response bodies.
type cartLinePayload struct {
	Price    int64 `json:"price"`
	Quantity int   `json:"quantity"`
}

type cartPayload map[string]cartLinePayload

func (p cartPayload) toDomain() domain.Cart {
	cart := make(domain.Cart, len(p))
	for productID, line := range p {
		cart[productID] = domain.CartLine{UnitPrice: line.Price, Quantity: line.Quantity}
	}
	return cart
}

func cartPayloadFrom(cart domain.Cart) cartPayload {
	payload := make(cartPayload, len(cart))
	for productID, line := range cart {
		payload[productID] = cartLinePayload{Price: line.UnitPrice, Quantity: line.Quantity}
	}
	return payload
}
