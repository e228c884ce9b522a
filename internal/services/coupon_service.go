package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/snackworks/api/internal/domain"
	"github.com/snackworks/api/internal/repositories"
)

var (
	// ErrCouponNotFound covers unknown codes and deactivated coupons alike;
	// callers cannot distinguish the two.
	ErrCouponNotFound = errors.New("coupon: not found")
	// ErrCouponInvalidInput signals malformed admin input.
	ErrCouponInvalidInput = errors.New("coupon: invalid input")
	// ErrCouponConflict indicates the code already exists.
	ErrCouponConflict = errors.New("coupon: conflict")
)

// CouponServiceDeps bundles dependencies required to construct a CouponService.
type CouponServiceDeps struct {
	Coupons repositories.CouponRepository
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type couponService struct {
	repo   repositories.CouponRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewCouponService wires a CouponService backed by the provided repository.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service: coupon repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &couponService{
		repo:   deps.Coupons,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// Resolve normalizes the code and returns the matching coupon rule. Inactive
// and nonexistent codes both resolve to ErrCouponNotFound.
func (s *couponService) Resolve(ctx context.Context, code string) (Coupon, error) {
	normalized := normalizeCouponCode(code)
	if normalized == "" {
		return Coupon{}, fmt.Errorf("%w: code is required", ErrCouponInvalidInput)
	}

	coupon, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	if !coupon.Active {
		return Coupon{}, ErrCouponNotFound
	}
	return coupon, nil
}

// Create registers a new coupon after validating its discount rule.
func (s *couponService) Create(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	normalized := normalizeCouponCode(cmd.Code)
	if normalized == "" {
		return Coupon{}, fmt.Errorf("%w: code is required", ErrCouponInvalidInput)
	}
	if err := validateDiscountRule(cmd.DiscountType, cmd.DiscountValue); err != nil {
		return Coupon{}, err
	}

	now := s.clock()
	coupon := Coupon{
		Code:          normalized,
		DiscountType:  cmd.DiscountType,
		DiscountValue: cmd.DiscountValue,
		Active:        cmd.Active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, coupon); err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "coupon.created", map[string]any{
		"code":  normalized,
		"type":  string(cmd.DiscountType),
		"value": cmd.DiscountValue,
	})
	return coupon, nil
}

// Deactivate switches the coupon off so it no longer resolves.
func (s *couponService) Deactivate(ctx context.Context, code string) (Coupon, error) {
	normalized := normalizeCouponCode(code)
	if normalized == "" {
		return Coupon{}, fmt.Errorf("%w: code is required", ErrCouponInvalidInput)
	}

	coupon, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	if !coupon.Active {
		return coupon, nil
	}

	coupon.Active = false
	coupon.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, coupon); err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "coupon.deactivated", map[string]any{"code": normalized})
	return coupon, nil
}

// List returns coupon definitions for admin screens.
func (s *couponService) List(ctx context.Context, pager Pagination) (domain.CursorPage[Coupon], error) {
	page, err := s.repo.List(ctx, pager)
	if err != nil {
		return domain.CursorPage[Coupon]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *couponService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCouponNotFound
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCouponConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("coupon: repository unavailable: %w", err)
		}
	}
	return err
}

func validateDiscountRule(discountType domain.DiscountType, value int64) error {
	switch discountType {
	case domain.DiscountTypePercentage:
		if value < 0 || value > 100 {
			return fmt.Errorf("%w: percentage must be within 0..100", ErrCouponInvalidInput)
		}
	case domain.DiscountTypeFixed:
		if value < 0 {
			return fmt.Errorf("%w: fixed discount must not be negative", ErrCouponInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown discount type %q", ErrCouponInvalidInput, discountType)
	}
	return nil
}

func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
