package services

import (
	"context"

	domain "github.com/snackworks/api/internal/domain"
	"github.com/snackworks/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination  = domain.Pagination
	Cart        = domain.Cart
	CartLine    = domain.CartLine
	Coupon      = domain.Coupon
	Order       = domain.Order
	OrderTotals = domain.OrderTotals
	Review      = domain.Review
	User        = domain.User
)

// OrderListFilter re-exports the repository filter for handler consumption.
type OrderListFilter = repositories.OrderListFilter

// CouponService resolves coupon codes for the pricing path and maintains
// coupon definitions for administrators.
type CouponService interface {
	Resolve(ctx context.Context, code string) (Coupon, error)
	Create(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	Deactivate(ctx context.Context, code string) (Coupon, error)
	List(ctx context.Context, pager Pagination) (domain.CursorPage[Coupon], error)
}

// OrderService encapsulates order reads, the status lifecycle, and admin deletion.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Get(ctx context.Context, cmd GetOrderCommand) (Order, error)
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) (domain.CursorPage[Order], error)
	Transition(ctx context.Context, cmd OrderTransitionCommand) (OrderTransitionResult, error)
	Delete(ctx context.Context, cmd DeleteOrderCommand) error
}

// CheckoutService prices the submitted cart, verifies payment, and commits the order.
type CheckoutService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (CartQuote, error)
	Commit(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
}

// ReviewService gates and records product reviews.
type ReviewService interface {
	CanReview(ctx context.Context, userID string, productName string) (bool, error)
	Submit(ctx context.Context, cmd SubmitReviewCommand) (Review, error)
	ListByProduct(ctx context.Context, productName string, pager Pagination) (domain.CursorPage[Review], error)
}

// UserService manages profile upserts and the account-deletion flow.
type UserService interface {
	EnsureProfile(ctx context.Context, cmd EnsureProfileCommand) (User, error)
	RequestDeletion(ctx context.Context, userID string) error
	ConfirmDeletion(ctx context.Context, userID string, code string) error
}

// NotificationDispatcher hands transactional email jobs to the delivery
// pipeline. Send failures are reported to the caller, which logs and
// downgrades them; they never roll back the state change that triggered the
// notification.
type NotificationDispatcher interface {
	Send(ctx context.Context, notification domain.Notification) error
}

// InvoiceBuilder renders the invoice document for an order and stores it.
type InvoiceBuilder interface {
	Build(ctx context.Context, order Order) (InvoiceArtifact, error)
}

// PaymentVerifier checks a client-supplied payment reference against the PSP.
type PaymentVerifier interface {
	Verify(ctx context.Context, paymentRef string, expectedAmount int64) error
}

// Command and DTO definitions ------------------------------------------------

// UpsertCouponCommand carries admin coupon creation input.
type UpsertCouponCommand struct {
	Code          string
	DiscountType  domain.DiscountType
	DiscountValue int64
	Active        bool
}

// CreateOrderCommand snapshots a priced cart into a new order record.
type CreateOrderCommand struct {
	UserID       string
	CustomerName string
	Phone        string
	Address      string
	Items        Cart
	Totals       domain.OrderTotals
	CouponCode   string
	PaymentRef   string
}

// GetOrderCommand reads one order, optionally enforcing ownership.
type GetOrderCommand struct {
	OrderID string
	UserID  string
	Admin   bool
}

// OrderTransitionCommand requests a lifecycle status change.
type OrderTransitionCommand struct {
	OrderID string
	Next    domain.OrderStatus
	ActorID string
}

// OrderTransitionResult reports the outcome of a transition, including the
// degraded-success case where the status committed but the notification did
// not go out.
type OrderTransitionResult struct {
	OrderID          string
	PreviousStatus   domain.OrderStatus
	NewStatus        domain.OrderStatus
	NoOp             bool
	NotificationSent bool
	NotificationErr  error
}

// DeleteOrderCommand removes an order record as an explicit admin action.
type DeleteOrderCommand struct {
	OrderID string
	ActorID string
}

// QuoteCommand prices a cart with an optional coupon code.
type QuoteCommand struct {
	Items      Cart
	CouponCode string
}

// CartQuote is the monetary breakdown returned by the pricing engine.
type CartQuote struct {
	Subtotal        int64
	Discount        int64
	Shipping        int64
	Total           int64
	AppliedCoupon   string
	DiscountClamped bool
}

// CheckoutCommand commits a priced cart into an order.
type CheckoutCommand struct {
	UserID       string
	Email        string
	CustomerName string
	Phone        string
	Address      string
	Items        Cart
	CouponCode   string
	PaymentRef   string
}

// CheckoutResult reports the committed order plus degraded-success flags for
// the post-commit side effects.
type CheckoutResult struct {
	Order           Order
	Quote           CartQuote
	InvoicePath     string
	InvoiceErr      error
	NotificationErr error
}

// SubmitReviewCommand carries a review submission.
type SubmitReviewCommand struct {
	UserID      string
	ProductName string
	Rating      int
	Text        string
}

// EnsureProfileCommand upserts the authenticated user's profile.
type EnsureProfileCommand struct {
	UID         string
	Email       string
	Phone       string
	DisplayName string
}

// InvoiceArtifact locates a stored invoice document.
type InvoiceArtifact struct {
	ObjectPath string
	SignedURL  string
}
