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

const maxReviewBodySize = 32 * 1024

// ReviewHandlers exposes endpoints for submitting and reading product reviews.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
}

// NewReviewHandlers constructs a ReviewHandlers instance.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService) *ReviewHandlers {
	return &ReviewHandlers{
		authn:   authn,
		reviews: reviews,
	}
}

// Routes registers the authenticated review endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/submit-review", h.submitReview)
	r.Get("/can-review", h.canReview)
}

// PublicRoutes registers the unauthenticated review listing.
func (h *ReviewHandlers) PublicRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products/{productName}/reviews", h.listByProduct)
}

type submitReviewRequest struct {
	ProductName string `json:"product_name"`
	Rating      int    `json:"rating"`
	ReviewText  string `json:"review_text"`
}

type reviewPayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Rating      int    `json:"rating"`
	Text        string `json:"text,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func (h *ReviewHandlers) submitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req submitReviewRequest
	if !decodeJSONBody(w, r, maxReviewBodySize, &req) {
		return
	}

	review, err := h.reviews.Submit(ctx, services.SubmitReviewCommand{
		UserID:      strings.TrimSpace(identity.UID),
		ProductName: req.ProductName,
		Rating:      req.Rating,
		Text:        req.ReviewText,
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildReviewPayload(review))
}

func (h *ReviewHandlers) canReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	eligible, err := h.reviews.CanReview(ctx, identity.UID, r.URL.Query().Get("product_name"))
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"can_review": eligible})
}

func (h *ReviewHandlers) listByProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, ok := parsePagination(w, r)
	if !ok {
		return
	}
	page, err := h.reviews.ListByProduct(ctx, chi.URLParam(r, "productName"), pager)
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}

	items := make([]reviewPayload, 0, len(page.Items))
	for _, review := range page.Items {
		items = append(items, buildReviewPayload(review))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"reviews":         items,
		"next_page_token": page.NextPageToken,
	})
}

func buildReviewPayload(review services.Review) reviewPayload {
	return reviewPayload{
		ID:          review.ID,
		ProductID:   review.ProductID,
		ProductName: review.ProductName,
		Rating:      review.Rating,
		Text:        review.Text,
		CreatedAt:   formatTime(review.CreatedAt),
	}
}

func writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReviewInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrReviewNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("not_eligible", "no delivered order contains this product", http.StatusForbidden))
	case errors.Is(err, services.ErrReviewDuplicate):
		httpx.WriteError(ctx, w, httpx.NewError("review_exists", "product already reviewed", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("review_error", "failed to process review request", http.StatusInternalServerError))
	}
}
