package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/snackworks/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	public   []RouteRegistrar
	customer []RouteRegistrar
	account  RouteRegistrar
	checkout RouteRegistrar
	admin    []RouteRegistrar

	checkoutMiddlewares []func(http.Handler) http.Handler
	adminMiddlewares    []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	apiPrefix         = "/api"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the
// storefront route groups. Checkout is mounted both under /api/checkout and
// at the legacy /checkout path.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers(nil)
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	mountCheckout := func(group chi.Router) {
		for _, mw := range cfg.checkoutMiddlewares {
			if mw != nil {
				group.Use(mw)
			}
		}
		if cfg.checkout != nil {
			cfg.checkout(group)
			return
		}
		registerNotImplemented(group, "checkout")
	}

	r.Route(apiPrefix, func(api chi.Router) {
		for _, registrar := range cfg.public {
			if registrar != nil {
				api.Group(registrar)
			}
		}
		for _, registrar := range cfg.customer {
			if registrar != nil {
				api.Group(registrar)
			}
		}
		if cfg.account != nil {
			api.Route("/account", func(group chi.Router) {
				cfg.account(group)
			})
		}
		api.Route("/checkout", mountCheckout)
	})

	// Legacy mount kept for clients that call /checkout directly.
	r.Route("/checkout", mountCheckout)

	r.Route("/admin", func(admin chi.Router) {
		for _, mw := range cfg.adminMiddlewares {
			if mw != nil {
				admin.Use(mw)
			}
		}
		if len(cfg.admin) == 0 {
			registerNotImplemented(admin, "admin")
			return
		}
		for _, registrar := range cfg.admin {
			if registrar != nil {
				registrar(admin)
			}
		}
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithPublicRoutes appends registrars for unauthenticated /api endpoints.
func WithPublicRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.public = append(cfg.public, reg...)
	}
}

// WithCustomerRoutes appends registrars for authenticated /api endpoints.
func WithCustomerRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.customer = append(cfg.customer, reg...)
	}
}

// WithAccountRoutes configures the registrar mounted under /api/account.
func WithAccountRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.account = reg
	}
}

// WithCheckoutRoutes configures the registrar mounted at /api/checkout and /checkout.
func WithCheckoutRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.checkout = reg
	}
}

// WithCheckoutMiddlewares configures middlewares applied to the checkout mounts.
func WithCheckoutMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.checkoutMiddlewares = append(cfg.checkoutMiddlewares, mw...)
	}
}

// WithAdminRoutes appends registrars for the /admin group.
func WithAdminRoutes(reg ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.admin = append(cfg.admin, reg...)
	}
}

// WithAdminMiddlewares configures middlewares applied to the /admin group.
func WithAdminMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.adminMiddlewares = append(cfg.adminMiddlewares, mw...)
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
