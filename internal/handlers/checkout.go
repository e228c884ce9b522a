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

const maxCheckoutBodySize = 64 * 1024

// CheckoutHandlers exposes the checkout commit endpoint.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs a CheckoutHandlers instance.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers the checkout endpoint on the given router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.commit)
}

type checkoutRequest struct {
	Cart           cartPayload            `json:"cart"`
	AddressDetails checkoutAddressDetails `json:"address_details"`
	PaymentID      string                 `json:"payment_id"`
	CouponCode     string                 `json:"coupon_code"`
}

type checkoutAddressDetails struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type checkoutResponse struct {
	Success          bool          `json:"success"`
	OrderID          string        `json:"order_id"`
	OrderNumber      string        `json:"order_number"`
	Totals           quoteResponse `json:"totals"`
	InvoicePath      string        `json:"invoice_path,omitempty"`
	NotificationSent bool          `json:"notification_sent"`
}

func (h *CheckoutHandlers) commit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req checkoutRequest
	if !decodeJSONBody(w, r, maxCheckoutBodySize, &req) {
		return
	}

	result, err := h.checkout.Commit(ctx, services.CheckoutCommand{
		UserID:       strings.TrimSpace(identity.UID),
		Email:        strings.TrimSpace(identity.Email),
		CustomerName: req.AddressDetails.Name,
		Phone:        req.AddressDetails.Phone,
		Address:      req.AddressDetails.Address,
		Items:        req.Cart.toDomain(),
		CouponCode:   req.CouponCode,
		PaymentRef:   req.PaymentID,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		Success:          true,
		OrderID:          result.Order.ID,
		OrderNumber:      result.Order.Number,
		Totals:           buildQuoteResponse(result.Quote),
		InvoicePath:      result.InvoicePath,
		NotificationSent: result.NotificationErr == nil,
	})
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput),
		errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrCartInvalid),
		errors.Is(err, services.ErrCouponInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon code is not valid", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment could not be verified", http.StatusPaymentRequired))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order already exists", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to complete checkout", http.StatusInternalServerError))
	}
}
