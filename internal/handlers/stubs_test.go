package handlers

import (
	"context"
	"errors"

	domain "github.com/snackworks/api/internal/domain"
	"github.com/snackworks/api/internal/services"
)

type stubCheckoutService struct {
	quoteFunc  func(ctx context.Context, cmd services.QuoteCommand) (services.CartQuote, error)
	commitFunc func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error)
}

func (s *stubCheckoutService) Quote(ctx context.Context, cmd services.QuoteCommand) (services.CartQuote, error) {
	if s.quoteFunc == nil {
		return services.CartQuote{}, errors.New("quote not stubbed")
	}
	return s.quoteFunc(ctx, cmd)
}

func (s *stubCheckoutService) Commit(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	if s.commitFunc == nil {
		return services.CheckoutResult{}, errors.New("commit not stubbed")
	}
	return s.commitFunc(ctx, cmd)
}

type stubOrderService struct {
	createFunc     func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error)
	getFunc        func(ctx context.Context, cmd services.GetOrderCommand) (services.Order, error)
	listByUserFunc func(ctx context.Context, userID string, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	transitionFunc func(ctx context.Context, cmd services.OrderTransitionCommand) (services.OrderTransitionResult, error)
	deleteFunc     func(ctx context.Context, cmd services.DeleteOrderCommand) error
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFunc == nil {
		return services.Order{}, errors.New("create not stubbed")
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubOrderService) Get(ctx context.Context, cmd services.GetOrderCommand) (services.Order, error) {
	if s.getFunc == nil {
		return services.Order{}, services.ErrOrderNotFound
	}
	return s.getFunc(ctx, cmd)
}

func (s *stubOrderService) ListByUser(ctx context.Context, userID string, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listByUserFunc == nil {
		return domain.CursorPage[services.Order]{}, nil
	}
	return s.listByUserFunc(ctx, userID, filter)
}

func (s *stubOrderService) Transition(ctx context.Context, cmd services.OrderTransitionCommand) (services.OrderTransitionResult, error) {
	if s.transitionFunc == nil {
		return services.OrderTransitionResult{}, errors.New("transition not stubbed")
	}
	return s.transitionFunc(ctx, cmd)
}

func (s *stubOrderService) Delete(ctx context.Context, cmd services.DeleteOrderCommand) error {
	if s.deleteFunc == nil {
		return errors.New("delete not stubbed")
	}
	return s.deleteFunc(ctx, cmd)
}

type stubReviewService struct {
	canReviewFunc     func(ctx context.Context, userID string, productName string) (bool, error)
	submitFunc        func(ctx context.Context, cmd services.SubmitReviewCommand) (services.Review, error)
	listByProductFunc func(ctx context.Context, productName string, pager services.Pagination) (domain.CursorPage[services.Review], error)
}

func (s *stubReviewService) CanReview(ctx context.Context, userID string, productName string) (bool, error) {
	if s.canReviewFunc == nil {
		return false, nil
	}
	return s.canReviewFunc(ctx, userID, productName)
}

func (s *stubReviewService) Submit(ctx context.Context, cmd services.SubmitReviewCommand) (services.Review, error) {
	if s.submitFunc == nil {
		return services.Review{}, errors.New("submit not stubbed")
	}
	return s.submitFunc(ctx, cmd)
}

func (s *stubReviewService) ListByProduct(ctx context.Context, productName string, pager services.Pagination) (domain.CursorPage[services.Review], error) {
	if s.listByProductFunc == nil {
		return domain.CursorPage[services.Review]{}, nil
	}
	return s.listByProductFunc(ctx, productName, pager)
}

type stubCouponAdminService struct {
	resolveFunc    func(ctx context.Context, code string) (services.Coupon, error)
	createFunc     func(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error)
	deactivateFunc func(ctx context.Context, code string) (services.Coupon, error)
	listFunc       func(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Coupon], error)
}

func (s *stubCouponAdminService) Resolve(ctx context.Context, code string) (services.Coupon, error) {
	if s.resolveFunc == nil {
		return services.Coupon{}, services.ErrCouponNotFound
	}
	return s.resolveFunc(ctx, code)
}

func (s *stubCouponAdminService) Create(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.createFunc == nil {
		return services.Coupon{}, errors.New("create not stubbed")
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubCouponAdminService) Deactivate(ctx context.Context, code string) (services.Coupon, error) {
	if s.deactivateFunc == nil {
		return services.Coupon{}, errors.New("deactivate not stubbed")
	}
	return s.deactivateFunc(ctx, code)
}

func (s *stubCouponAdminService) List(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Coupon], error) {
	if s.listFunc == nil {
		return domain.CursorPage[services.Coupon]{}, nil
	}
	return s.listFunc(ctx, pager)
}

type stubUserService struct {
	ensureProfileFunc   func(ctx context.Context, cmd services.EnsureProfileCommand) (services.User, error)
	requestDeletionFunc func(ctx context.Context, userID string) error
	confirmDeletionFunc func(ctx context.Context, userID string, code string) error
}

func (s *stubUserService) EnsureProfile(ctx context.Context, cmd services.EnsureProfileCommand) (services.User, error) {
	if s.ensureProfileFunc == nil {
		return services.User{UID: cmd.UID}, nil
	}
	return s.ensureProfileFunc(ctx, cmd)
}

func (s *stubUserService) RequestDeletion(ctx context.Context, userID string) error {
	if s.requestDeletionFunc == nil {
		return nil
	}
	return s.requestDeletionFunc(ctx, userID)
}

func (s *stubUserService) ConfirmDeletion(ctx context.Context, userID string, code string) error {
	if s.confirmDeletionFunc == nil {
		return nil
	}
	return s.confirmDeletionFunc(ctx, userID, code)
}
