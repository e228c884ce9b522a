package repositories

import (
	"context"
	"time"

	domain "github.com/snackworks/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order records and provides query helpers for users and admins.
type OrderRepository interface {
	// Insert writes the full order document atomically and fails with a
	// conflict error when the ID already exists.
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// ListByUser returns the user's orders newest-first.
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// UpdateStatus swaps the status inside a transaction and returns the
	// status observed before the write. When expected is non-empty and the
	// stored status differs, the update aborts with a conflict error.
	UpdateStatus(ctx context.Context, orderID string, next domain.OrderStatus, expected domain.OrderStatus, update OrderStatusUpdate) (domain.OrderStatus, error)
	Delete(ctx context.Context, orderID string) error
}

// OrderStatusUpdate carries companion fields written alongside a status swap.
type OrderStatusUpdate struct {
	UpdatedAt   time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
}

// OrderListFilter narrows and paginates order listings.
type OrderListFilter struct {
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CouponRepository maintains coupon definitions keyed by uppercase code.
type CouponRepository interface {
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Coupon], error)
}

// ReviewRepository stores product reviews with a uniqueness guarantee per
// (user, product) pair enforced at write time.
type ReviewRepository interface {
	// Insert creates the review and fails with a conflict error when the
	// (user, product) pair already has one.
	Insert(ctx context.Context, review domain.Review) (domain.Review, error)
	FindByUserAndProduct(ctx context.Context, userID string, productID string) (domain.Review, error)
	ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
}

// UserRepository stores user profiles and supports the soft-deletion flow.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
	Upsert(ctx context.Context, user domain.User) (domain.User, error)
	SetDeletionCode(ctx context.Context, userID string, codeHash string, expiresAt time.Time, now time.Time) error
	SoftDelete(ctx context.Context, userID string, deletedAt time.Time) error
}

// HealthRepository aggregates dependency probes for the readiness endpoint.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
