package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/snackworks/api/internal/domain"
	"github.com/snackworks/api/internal/repositories"
)

// stubRepoError lets tests drive the repository error categorisation the
// services branch on.
type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return "stub repository error" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

var errStubNotFound = stubRepoError{notFound: true}

type stubOrderRepository struct {
	insertFn       func(ctx context.Context, order domain.Order) error
	findByIDFn     func(ctx context.Context, orderID string) (domain.Order, error)
	listByUserFn   func(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	updateStatusFn func(ctx context.Context, orderID string, next domain.OrderStatus, expected domain.OrderStatus, update repositories.OrderStatusUpdate) (domain.OrderStatus, error)
	deleteFn       func(ctx context.Context, orderID string) error
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, order)
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFn == nil {
		return domain.Order{}, errStubNotFound
	}
	return s.findByIDFn(ctx, orderID)
}

func (s *stubOrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listByUserFn == nil {
		return domain.CursorPage[domain.Order]{}, nil
	}
	return s.listByUserFn(ctx, userID, filter)
}

func (s *stubOrderRepository) UpdateStatus(ctx context.Context, orderID string, next domain.OrderStatus, expected domain.OrderStatus, update repositories.OrderStatusUpdate) (domain.OrderStatus, error) {
	if s.updateStatusFn == nil {
		return expected, nil
	}
	return s.updateStatusFn(ctx, orderID, next, expected, update)
}

func (s *stubOrderRepository) Delete(ctx context.Context, orderID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, orderID)
}

type stubCouponRepository struct {
	insertFn     func(ctx context.Context, coupon domain.Coupon) error
	updateFn     func(ctx context.Context, coupon domain.Coupon) error
	findByCodeFn func(ctx context.Context, code string) (domain.Coupon, error)
	listFn       func(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Coupon], error)
}

func (s *stubCouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, coupon)
}

func (s *stubCouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, coupon)
}

func (s *stubCouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if s.findByCodeFn == nil {
		return domain.Coupon{}, errStubNotFound
	}
	return s.findByCodeFn(ctx, code)
}

func (s *stubCouponRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Coupon], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Coupon]{}, nil
	}
	return s.listFn(ctx, pager)
}

type stubReviewRepository struct {
	insertFn               func(ctx context.Context, review domain.Review) (domain.Review, error)
	findByUserAndProductFn func(ctx context.Context, userID string, productID string) (domain.Review, error)
	listByProductFn        func(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	listByUserFn           func(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
}

func (s *stubReviewRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	if s.insertFn == nil {
		return review, nil
	}
	return s.insertFn(ctx, review)
}

func (s *stubReviewRepository) FindByUserAndProduct(ctx context.Context, userID string, productID string) (domain.Review, error) {
	if s.findByUserAndProductFn == nil {
		return domain.Review{}, errStubNotFound
	}
	return s.findByUserAndProductFn(ctx, userID, productID)
}

func (s *stubReviewRepository) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if s.listByProductFn == nil {
		return domain.CursorPage[domain.Review]{}, nil
	}
	return s.listByProductFn(ctx, productID, pager)
}

func (s *stubReviewRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if s.listByUserFn == nil {
		return domain.CursorPage[domain.Review]{}, nil
	}
	return s.listByUserFn(ctx, userID, pager)
}

type stubUserRepository struct {
	findByIDFn        func(ctx context.Context, userID string) (domain.User, error)
	upsertFn          func(ctx context.Context, user domain.User) (domain.User, error)
	setDeletionCodeFn func(ctx context.Context, userID string, codeHash string, expiresAt time.Time, now time.Time) error
	softDeleteFn      func(ctx context.Context, userID string, deletedAt time.Time) error
}

func (s *stubUserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if s.findByIDFn == nil {
		return domain.User{}, errStubNotFound
	}
	return s.findByIDFn(ctx, userID)
}

func (s *stubUserRepository) Upsert(ctx context.Context, user domain.User) (domain.User, error) {
	if s.upsertFn == nil {
		return user, nil
	}
	return s.upsertFn(ctx, user)
}

func (s *stubUserRepository) SetDeletionCode(ctx context.Context, userID string, codeHash string, expiresAt time.Time, now time.Time) error {
	if s.setDeletionCodeFn == nil {
		return nil
	}
	return s.setDeletionCodeFn(ctx, userID, codeHash, expiresAt, now)
}

func (s *stubUserRepository) SoftDelete(ctx context.Context, userID string, deletedAt time.Time) error {
	if s.softDeleteFn == nil {
		return nil
	}
	return s.softDeleteFn(ctx, userID, deletedAt)
}

type stubCounterRepository struct {
	nextFn func(ctx context.Context, counterID string, step int64) (int64, error)
}

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn == nil {
		return 1, nil
	}
	return s.nextFn(ctx, counterID, step)
}

func (s *stubCounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	return nil
}

// captureDispatcher records every Send and can be primed to fail.
type captureDispatcher struct {
	sent    []domain.Notification
	failErr error
}

func (d *captureDispatcher) Send(ctx context.Context, notification domain.Notification) error {
	if d.failErr != nil {
		return d.failErr
	}
	d.sent = append(d.sent, notification)
	return nil
}

var errDispatchDown = errors.New("dispatch pipeline down")
