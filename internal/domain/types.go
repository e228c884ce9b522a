package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps paginated results with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// CartLine is a single purchasable line inside a cart, keyed by product ID.
type CartLine struct {
	UnitPrice int64
	Quantity  int
}

// Cart maps product identifiers to their line details. Carts are
// client-supplied and ephemeral; they are snapshotted into an order at
// checkout and never persisted on their own.
type Cart map[string]CartLine

// Subtotal sums unit price times quantity across all cart lines.
func (c Cart) Subtotal() int64 {
	var total int64
	for _, line := range c {
		total += line.UnitPrice * int64(line.Quantity)
	}
	return total
}

// Clone returns a deep copy so order snapshots cannot alias caller maps.
func (c Cart) Clone() Cart {
	if c == nil {
		return nil
	}
	out := make(Cart, len(c))
	for id, line := range c {
		out[id] = line
	}
	return out
}

// DiscountType enumerates supported coupon discount rules.
type DiscountType string

const (
	// DiscountTypePercentage discounts a percentage of the cart subtotal.
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFixed discounts a flat amount off the cart subtotal.
	DiscountTypeFixed DiscountType = "fixed"
)

// Coupon stores a discount rule addressable by its uppercase code.
type Coupon struct {
	Code          string
	DiscountType  DiscountType
	DiscountValue int64
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusProcessing is the initial state assigned at checkout commit.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before delivery.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderTotals captures the monetary breakdown frozen on the order.
type OrderTotals struct {
	Subtotal int64
	Discount int64
	Shipping int64
	Total    int64
}

// Order is the persisted record produced by a checkout commit. Only Status
// and its companion timestamps change after creation; every other field is
// immutable once written.
type Order struct {
	ID           string
	Number       string
	UserID       string
	CustomerName string
	Phone        string
	Address      string
	Items        Cart
	Totals       OrderTotals
	CouponCode   string
	PaymentRef   string
	Status       OrderStatus
	InvoicePath  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ShippedAt    *time.Time
	DeliveredAt  *time.Time
	CancelledAt  *time.Time
}

// ContainsProduct reports whether the order snapshot includes the product
// under any of the supplied identifier forms.
func (o Order) ContainsProduct(ids ...string) bool {
	for _, id := range ids {
		if _, ok := o.Items[id]; ok {
			return true
		}
	}
	return false
}

// User mirrors the identity-provider profile plus storefront-side flags.
// Deletion is soft: DeletedAt is set, authentication is revoked upstream, and
// historical orders remain attributed to the UID.
type User struct {
	UID                  string
	Email                string
	Phone                string
	DisplayName          string
	BlockedFromReviewing bool
	DeletedAt            *time.Time
	DeletionCodeHash     string
	DeletionCodeExpires  *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Deleted reports whether the account has been soft deleted.
func (u User) Deleted() bool {
	return u.DeletedAt != nil
}

// Review is a customer product review, unique per (user, product).
type Review struct {
	ID          string
	UserID      string
	ProductID   string
	ProductName string
	OrderID     string
	Rating      int
	Text        string
	CreatedAt   time.Time
}

// NotificationKind enumerates transactional email categories.
type NotificationKind string

const (
	// NotificationConfirmation is the order confirmation email with invoice.
	NotificationConfirmation NotificationKind = "confirmation"
	// NotificationShipped announces the shipped transition.
	NotificationShipped NotificationKind = "shipped"
	// NotificationDelivered announces the delivered transition.
	NotificationDelivered NotificationKind = "delivered"
	// NotificationCancelled announces the cancelled transition.
	NotificationCancelled NotificationKind = "cancelled"
	// NotificationDeletionCode carries the account-deletion verification code.
	NotificationDeletionCode NotificationKind = "deletion_code"
)

// Notification is an email job handed to the dispatcher. Payload carries
// template variables; InvoicePath points at the rendered invoice document for
// confirmation emails.
type Notification struct {
	ID          string
	Kind        NotificationKind
	OrderID     string
	Recipient   string
	Subject     string
	Payload     map[string]any
	InvoicePath string
	EnqueuedAt  time.Time
}

// HealthStatus classifies the outcome of a dependency probe.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// SystemHealthCheck is the result of a single dependency probe.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes for readiness reporting.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
