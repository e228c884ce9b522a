package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/snackworks/api/internal/domain"
	"github.com/snackworks/api/internal/platform/httpx"
	"github.com/snackworks/api/internal/services"
)

const maxCouponBodySize = 32 * 1024

// CouponHandlers serves the public cart-pricing preview and the admin coupon
// management endpoints.
type CouponHandlers struct {
	checkout services.CheckoutService
	coupons  services.CouponService
	limiter  RateLimiter
}

// NewCouponHandlers constructs a CouponHandlers instance.
func NewCouponHandlers(checkout services.CheckoutService, coupons services.CouponService, limiter RateLimiter) *CouponHandlers {
	return &CouponHandlers{
		checkout: checkout,
		coupons:  coupons,
		limiter:  limiter,
	}
}

// PublicRoutes registers the unauthenticated pricing preview.
func (h *CouponHandlers) PublicRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/apply-coupon", h.applyCoupon)
}

// AdminRoutes registers coupon management endpoints.
func (h *CouponHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/coupons", h.createCoupon)
	r.Post("/coupons/{code}:deactivate", h.deactivateCoupon)
	r.Get("/coupons", h.listCoupons)
}

type applyCouponRequest struct {
	Cart       cartPayload `json:"cart"`
	CouponCode string      `json:"coupon_code"`
}

type quoteResponse struct {
	Subtotal      int64  `json:"subtotal"`
	Discount      int64  `json:"discount"`
	ShippingCost  int64  `json:"shipping_cost"`
	Total         int64  `json:"total"`
	AppliedCoupon string `json:"applied_coupon,omitempty"`
}

// applyCoupon prices the cart with an optional coupon. It runs the same quote
// path checkout later commits with, so the preview a customer sees is the
// amount they are charged.
func (h *CouponHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many pricing requests", http.StatusTooManyRequests))
		return
	}

	var req applyCouponRequest
	if !decodeJSONBody(w, r, maxCouponBodySize, &req) {
		return
	}

	quote, err := h.checkout.Quote(ctx, services.QuoteCommand{
		Items:      req.Cart.toDomain(),
		CouponCode: req.CouponCode,
	})
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildQuoteResponse(quote))
}

type upsertCouponRequest struct {
	Code          string `json:"code"`
	DiscountType  string `json:"discount_type"`
	DiscountValue int64  `json:"discount_value"`
	Active        *bool  `json:"active"`
}

type couponPayload struct {
	Code          string `json:"code"`
	DiscountType  string `json:"discount_type"`
	DiscountValue int64  `json:"discount_value"`
	Active        bool   `json:"active"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

func (h *CouponHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertCouponRequest
	if !decodeJSONBody(w, r, maxCouponBodySize, &req) {
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	coupon, err := h.coupons.Create(ctx, services.UpsertCouponCommand{
		Code:          req.Code,
		DiscountType:  domain.DiscountType(strings.ToLower(strings.TrimSpace(req.DiscountType))),
		DiscountValue: req.DiscountValue,
		Active:        active,
	})
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildCouponPayload(coupon))
}

func (h *CouponHandlers) deactivateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}

	coupon, err := h.coupons.Deactivate(ctx, chi.URLParam(r, "code"))
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCouponPayload(coupon))
}

func (h *CouponHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, ok := parsePagination(w, r)
	if !ok {
		return
	}
	page, err := h.coupons.List(ctx, pager)
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}

	items := make([]couponPayload, 0, len(page.Items))
	for _, coupon := range page.Items {
		items = append(items, buildCouponPayload(coupon))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"coupons":         items,
		"next_page_token": page.NextPageToken,
	})
}

func buildQuoteResponse(quote services.CartQuote) quoteResponse {
	return quoteResponse{
		Subtotal:      quote.Subtotal,
		Discount:      quote.Discount,
		ShippingCost:  quote.Shipping,
		Total:         quote.Total,
		AppliedCoupon: quote.AppliedCoupon,
	}
}

func buildCouponPayload(coupon services.Coupon) couponPayload {
	return couponPayload{
		Code:          coupon.Code,
		DiscountType:  string(coupon.DiscountType),
		DiscountValue: coupon.DiscountValue,
		Active:        coupon.Active,
		CreatedAt:     formatTime(coupon.CreatedAt),
		UpdatedAt:     formatTime(coupon.UpdatedAt),
	}
}

func writeQuoteError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon code is not valid", http.StatusNotFound))
	case errors.Is(err, services.ErrCouponInvalidInput), errors.Is(err, services.ErrCouponInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_coupon", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_cart", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("pricing_error", "failed to price the cart", http.StatusInternalServerError))
	}
}

func writeCouponError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCouponInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCouponConflict):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_conflict", "coupon code already exists", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("coupon_error", "failed to process coupon request", http.StatusInternalServerError))
	}
}
