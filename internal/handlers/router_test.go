package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/snackworks/api/internal/platform/auth"
	"github.com/snackworks/api/internal/services"
)

func TestRouterMountsExpectedRoutes(t *testing.T) {
	checkout := &stubCheckoutService{
		quoteFunc: func(context.Context, services.QuoteCommand) (services.CartQuote, error) {
			return services.CartQuote{Subtotal: 100, Shipping: 99, Total: 199}, nil
		},
		commitFunc: func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{Order: services.Order{ID: "ord_1"}}, nil
		},
	}
	orders := &stubOrderService{}
	reviews := &stubReviewService{}
	users := &stubUserService{}
	coupons := NewCouponHandlers(checkout, &stubCouponAdminService{}, nil)
	orderHandlers := NewOrderHandlers(nil, orders)
	reviewHandlers := NewReviewHandlers(nil, reviews)
	accountHandlers := NewAccountHandlers(nil, users)
	checkoutHandlers := NewCheckoutHandlers(nil, checkout)
	adminOrders := NewAdminOrderHandlers(orders)

	router := NewRouter(
		WithPublicRoutes(coupons.PublicRoutes, reviewHandlers.PublicRoutes),
		WithCustomerRoutes(orderHandlers.Routes, reviewHandlers.Routes),
		WithAccountRoutes(accountHandlers.Routes),
		WithCheckoutRoutes(checkoutHandlers.Routes),
		WithAdminRoutes(adminOrders.Routes, coupons.AdminRoutes),
	)

	identity := func(req *http.Request) *http.Request {
		return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	}

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		prepare func(*http.Request) *http.Request
		want    int
	}{
		{
			name:   "health liveness",
			method: http.MethodGet,
			path:   "/healthz",
			want:   http.StatusOK,
		},
		{
			name:   "public apply coupon",
			method: http.MethodPost,
			path:   "/api/apply-coupon",
			body:   `{"cart":{"makhana-plain":{"price":100,"quantity":1}}}`,
			want:   http.StatusOK,
		},
		{
			name:    "my orders",
			method:  http.MethodGet,
			path:    "/api/my-orders",
			prepare: identity,
			want:    http.StatusOK,
		},
		{
			name:    "checkout under api",
			method:  http.MethodPost,
			path:    "/api/checkout",
			body:    `{"cart":{"makhana-plain":{"price":100,"quantity":1}},"address_details":{"name":"A","address":"B"},"payment_id":"pi"}`,
			prepare: identity,
			want:    http.StatusCreated,
		},
		{
			name:    "checkout legacy mount",
			method:  http.MethodPost,
			path:    "/checkout",
			body:    `{"cart":{"makhana-plain":{"price":100,"quantity":1}},"address_details":{"name":"A","address":"B"},"payment_id":"pi"}`,
			prepare: identity,
			want:    http.StatusCreated,
		},
		{
			name:    "account request deletion",
			method:  http.MethodPost,
			path:    "/api/account/request-deletion",
			prepare: identity,
			want:    http.StatusAccepted,
		},
		{
			name:   "unknown route",
			method: http.MethodGet,
			path:   "/api/nope",
			want:   http.StatusNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var body *bytes.Buffer
			if tc.body != "" {
				body = bytes.NewBufferString(tc.body)
			} else {
				body = &bytes.Buffer{}
			}
			req := httptest.NewRequest(tc.method, tc.path, body)
			if tc.prepare != nil {
				req = tc.prepare(req)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("expected status %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRouterAdminMiddlewareApplies(t *testing.T) {
	guard := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Service-Token") == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	orders := &stubOrderService{
		transitionFunc: func(_ context.Context, cmd services.OrderTransitionCommand) (services.OrderTransitionResult, error) {
			return services.OrderTransitionResult{OrderID: cmd.OrderID}, nil
		},
	}

	router := NewRouter(
		WithAdminRoutes(NewAdminOrderHandlers(orders).Routes),
		WithAdminMiddlewares(guard),
	)

	req := httptest.NewRequest(http.MethodPost, "/admin/update-order-status/ord_1", bytes.NewBufferString(`{"new_status":"shipped"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/update-order-status/ord_1", bytes.NewBufferString(`{"new_status":"shipped"}`))
	req.Header.Set("X-Service-Token", "svc")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 with token, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouterNotImplementedGroups(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodPost, "/admin/update-order-status/ord_1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected status 501, got %d", rr.Code)
	}
}
