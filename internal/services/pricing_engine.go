package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/snackworks/api/internal/domain"
	"github.com/snackworks/api/internal/platform/textutil"
)

var (
	// ErrCartInvalid signals bad cart data such as missing items or negative prices.
	ErrCartInvalid = errors.New("pricing: invalid cart")
	// ErrCouponInvalid signals a coupon rule that cannot be applied, such as a
	// percentage outside 0..100.
	ErrCouponInvalid = errors.New("pricing: invalid coupon")
)

const (
	defaultFreeShippingThreshold = 500
	defaultFlatShippingFee       = 99
	subscriptionProductMarker    = "subscription"
)

// PricingEngine turns a cart plus an optional coupon into a quote. It holds
// only configuration, performs no I/O, and is safe for concurrent use; the
// apply-coupon preview and the checkout commit share the same instance so the
// two paths cannot drift.
type PricingEngine struct {
	freeShippingThreshold int64
	flatShippingFee       int64
	logger                func(context.Context, string, map[string]any)
}

// PricingEngineDeps bundles configuration for constructing a PricingEngine.
type PricingEngineDeps struct {
	FreeShippingThreshold int64
	FlatShippingFee       int64
	Logger                func(context.Context, string, map[string]any)
}

// NewPricingEngine constructs the engine, falling back to the standard
// storefront shipping rules when thresholds are unset.
func NewPricingEngine(deps PricingEngineDeps) *PricingEngine {
	threshold := deps.FreeShippingThreshold
	if threshold <= 0 {
		threshold = defaultFreeShippingThreshold
	}
	fee := deps.FlatShippingFee
	if fee <= 0 {
		fee = defaultFlatShippingFee
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PricingEngine{
		freeShippingThreshold: threshold,
		flatShippingFee:       fee,
		logger:                logger,
	}
}

// Price validates the cart and produces the quote. A nil coupon prices the
// cart without a discount. The discount is clamped to [0, subtotal] so the
// total can never go negative; when the clamp fires the quote reports it so
// callers can log the event.
func (e *PricingEngine) Price(ctx context.Context, cart Cart, coupon *Coupon) (CartQuote, error) {
	if err := validateCart(cart); err != nil {
		return CartQuote{}, err
	}

	subtotal := cart.Subtotal()
	shipping := e.shippingFor(cart, subtotal)

	var discount int64
	clamped := false
	appliedCoupon := ""
	if coupon != nil {
		value, err := discountFor(*coupon, subtotal)
		if err != nil {
			return CartQuote{}, err
		}
		discount = value
		appliedCoupon = coupon.Code
		if discount > subtotal {
			discount = subtotal
			clamped = true
			e.logger(ctx, "pricing.discount.clamped", map[string]any{
				"coupon":   coupon.Code,
				"subtotal": subtotal,
				"raw":      value,
			})
		}
		if discount < 0 {
			discount = 0
			clamped = true
		}
	}

	return CartQuote{
		Subtotal:        subtotal,
		Discount:        discount,
		Shipping:        shipping,
		Total:           subtotal - discount + shipping,
		AppliedCoupon:   appliedCoupon,
		DiscountClamped: clamped,
	}, nil
}

func (e *PricingEngine) shippingFor(cart Cart, subtotal int64) int64 {
	if subtotal >= e.freeShippingThreshold {
		return 0
	}
	// A lone subscription item ships free regardless of subtotal.
	if len(cart) == 1 {
		for productID := range cart {
			if isSubscriptionProduct(productID) {
				return 0
			}
		}
	}
	return e.flatShippingFee
}

func discountFor(coupon Coupon, subtotal int64) (int64, error) {
	switch coupon.DiscountType {
	case domain.DiscountTypePercentage:
		if coupon.DiscountValue < 0 || coupon.DiscountValue > 100 {
			return 0, fmt.Errorf("%w: percentage %d out of range", ErrCouponInvalid, coupon.DiscountValue)
		}
		return subtotal * coupon.DiscountValue / 100, nil
	case domain.DiscountTypeFixed:
		if coupon.DiscountValue < 0 {
			return 0, fmt.Errorf("%w: negative fixed discount", ErrCouponInvalid)
		}
		return coupon.DiscountValue, nil
	default:
		return 0, fmt.Errorf("%w: unknown discount type %q", ErrCouponInvalid, coupon.DiscountType)
	}
}

func validateCart(cart Cart) error {
	if len(cart) == 0 {
		return fmt.Errorf("%w: cart must contain at least one item", ErrCartInvalid)
	}
	for productID, line := range cart {
		if strings.TrimSpace(productID) == "" {
			return fmt.Errorf("%w: product id is required", ErrCartInvalid)
		}
		if line.Quantity < 1 {
			return fmt.Errorf("%w: quantity for %s must be positive", ErrCartInvalid, productID)
		}
		if line.UnitPrice < 0 {
			return fmt.Errorf("%w: unit price for %s must not be negative", ErrCartInvalid, productID)
		}
	}
	return nil
}

func isSubscriptionProduct(productID string) bool {
	normalized := textutil.NormalizeProductID(productID)
	return strings.Contains(normalized, subscriptionProductMarker)
}
