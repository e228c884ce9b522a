package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/snackworks/api/internal/domain"
	"github.com/snackworks/api/internal/platform/auth"
	"github.com/snackworks/api/internal/platform/httpx"
	"github.com/snackworks/api/internal/repositories"
	"github.com/snackworks/api/internal/services"
)

const maxOrderBodySize = 16 * 1024

// OrderHandlers serves the customer order history endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs an OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the customer-facing order endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/my-orders", h.listMyOrders)
	r.Get("/my-orders/{orderID}", h.getMyOrder)
}

type orderPayload struct {
	ID           string      `json:"id"`
	Number       string      `json:"number"`
	Status       string      `json:"status"`
	Amount       int64       `json:"amount"`
	Subtotal     int64       `json:"subtotal"`
	Discount     int64       `json:"discount"`
	ShippingCost int64       `json:"shipping_cost"`
	CouponCode   string      `json:"coupon_code,omitempty"`
	CartSnapshot cartPayload `json:"cart_snapshot"`
	CreatedAt    string      `json:"created_at"`
	ShippedAt    string      `json:"shipped_at,omitempty"`
	DeliveredAt  string      `json:"delivered_at,omitempty"`
	CancelledAt  string      `json:"cancelled_at,omitempty"`
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	pager, ok := parsePagination(w, r)
	if !ok {
		return
	}
	filter := services.OrderListFilter{Pagination: pager}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		filter.Status = []string{strings.ToLower(status)}
	}

	page, err := h.orders.ListByUser(ctx, identity.UID, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"orders":          items,
		"next_page_token": page.NextPageToken,
	})
}

func (h *OrderHandlers) getMyOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.Get(ctx, services.GetOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		UserID:  identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

// AdminOrderHandlers serves the administrative order lifecycle endpoints.
type AdminOrderHandlers struct {
	orders services.OrderService
}

// NewAdminOrderHandlers constructs an AdminOrderHandlers instance.
func NewAdminOrderHandlers(orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{orders: orders}
}

// Routes registers the admin order endpoints. Authentication is applied by
// the router's admin group middleware.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/update-order-status/{orderID}", h.updateStatus)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Delete("/orders/{orderID}", h.deleteOrder)
}

type updateOrderStatusRequest struct {
	NewStatus string `json:"new_status"`
}

type updateOrderStatusResponse struct {
	OrderID          string `json:"order_id"`
	PreviousStatus   string `json:"previous_status"`
	NewStatus        string `json:"new_status"`
	NoOp             bool   `json:"no_op"`
	NotificationSent bool   `json:"notification_sent"`
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req updateOrderStatusRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, &req) {
		return
	}

	result, err := h.orders.Transition(ctx, services.OrderTransitionCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Next:    domain.OrderStatus(req.NewStatus),
		ActorID: adminActor(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, updateOrderStatusResponse{
		OrderID:          result.OrderID,
		PreviousStatus:   string(result.PreviousStatus),
		NewStatus:        string(result.NewStatus),
		NoOp:             result.NoOp,
		NotificationSent: result.NotificationSent,
	})
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	order, err := h.orders.Get(ctx, services.GetOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Admin:   true,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	err := h.orders.Delete(ctx, services.DeleteOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: adminActor(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func adminActor(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		return strings.TrimSpace(identity.UID)
	}
	return ""
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:           order.ID,
		Number:       order.Number,
		Status:       string(order.Status),
		Amount:       order.Totals.Total,
		Subtotal:     order.Totals.Subtotal,
		Discount:     order.Totals.Discount,
		ShippingCost: order.Totals.Shipping,
		CouponCode:   order.CouponCode,
		CartSnapshot: cartPayloadFrom(order.Items),
		CreatedAt:    formatTime(order.CreatedAt),
	}
	if order.ShippedAt != nil {
		payload.ShippedAt = formatTime(*order.ShippedAt)
	}
	if order.DeliveredAt != nil {
		payload.DeliveredAt = formatTime(*order.DeliveredAt)
	}
	if order.CancelledAt != nil {
		payload.CancelledAt = formatTime(*order.CancelledAt)
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions", http.StatusForbidden))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
