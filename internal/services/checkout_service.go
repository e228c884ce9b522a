package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/snackworks/api/internal/domain"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutPaymentFailed indicates the supplied payment reference did not verify.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Pricing       *PricingEngine
	Coupons       CouponService
	Orders        OrderService
	Payments      PaymentVerifier
	Invoices      InvoiceBuilder
	Notifications NotificationDispatcher
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	pricing       *PricingEngine
	coupons       CouponService
	orders        OrderService
	payments      PaymentVerifier
	invoices      InvoiceBuilder
	notifications NotificationDispatcher
	clock         func() time.Time
	logger        func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing engine is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("checkout service: coupon service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &checkoutService{
		pricing:       deps.Pricing,
		coupons:       deps.Coupons,
		orders:        deps.Orders,
		payments:      deps.Payments,
		invoices:      deps.Invoices,
		notifications: deps.Notifications,
		clock:         func() time.Time { return clock().UTC() },
		logger:        logger,
	}, nil
}

// Quote prices the cart without side effects. Checkout commits call the same
// path, so preview and commit cannot disagree for identical inputs. An
// unknown or inactive coupon code rejects the whole quote rather than being
// silently dropped.
func (s *checkoutService) Quote(ctx context.Context, cmd QuoteCommand) (CartQuote, error) {
	var coupon *Coupon
	if code := strings.TrimSpace(cmd.CouponCode); code != "" {
		resolved, err := s.coupons.Resolve(ctx, code)
		if err != nil {
			return CartQuote{}, err
		}
		coupon = &resolved
	}
	return s.pricing.Price(ctx, cmd.Items, coupon)
}

// Commit prices the cart, verifies the payment reference, and records the
// order. The order insert is the commit point: invoice rendering and the
// confirmation email run after it and their failures degrade the result
// instead of failing the checkout.
func (s *checkoutService) Commit(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	if strings.TrimSpace(cmd.UserID) == "" {
		return CheckoutResult{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(cmd.CustomerName) == "" || strings.TrimSpace(cmd.Address) == "" {
		return CheckoutResult{}, fmt.Errorf("%w: name and address are required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(cmd.PaymentRef) == "" {
		return CheckoutResult{}, fmt.Errorf("%w: payment reference is required", ErrCheckoutInvalidInput)
	}

	quote, err := s.Quote(ctx, QuoteCommand{Items: cmd.Items, CouponCode: cmd.CouponCode})
	if err != nil {
		return CheckoutResult{}, err
	}

	if s.payments != nil {
		if err := s.payments.Verify(ctx, cmd.PaymentRef, quote.Total); err != nil {
			s.logger(ctx, "checkout.payment.rejected", map[string]any{
				"user":  cmd.UserID,
				"error": err.Error(),
			})
			return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
		}
	}

	order, err := s.orders.Create(ctx, CreateOrderCommand{
		UserID:       cmd.UserID,
		CustomerName: cmd.CustomerName,
		Phone:        cmd.Phone,
		Address:      cmd.Address,
		Items:        cmd.Items,
		Totals: domain.OrderTotals{
			Subtotal: quote.Subtotal,
			Discount: quote.Discount,
			Shipping: quote.Shipping,
			Total:    quote.Total,
		},
		CouponCode: quote.AppliedCoupon,
		PaymentRef: cmd.PaymentRef,
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	result := CheckoutResult{Order: order, Quote: quote}

	// Post-commit side effects: failures from here on are degraded success.
	if s.invoices != nil {
		artifact, invoiceErr := s.invoices.Build(ctx, order)
		if invoiceErr != nil {
			result.InvoiceErr = invoiceErr
			s.logger(ctx, "checkout.invoice.failed", map[string]any{
				"order": order.ID,
				"error": invoiceErr.Error(),
			})
		} else {
			result.InvoicePath = artifact.ObjectPath
		}
	}

	result.NotificationErr = s.sendConfirmation(ctx, order, cmd.Email, result.InvoicePath)
	return result, nil
}

func (s *checkoutService) sendConfirmation(ctx context.Context, order Order, email string, invoicePath string) error {
	if s.notifications == nil {
		return nil
	}
	recipient := strings.TrimSpace(email)
	if recipient == "" {
		s.logger(ctx, "checkout.confirmation.skipped", map[string]any{"order": order.ID})
		return nil
	}
	err := s.notifications.Send(ctx, domain.Notification{
		Kind:      domain.NotificationConfirmation,
		OrderID:   order.ID,
		Recipient: recipient,
		Payload: map[string]any{
			"orderNumber": order.Number,
			"subtotal":    order.Totals.Subtotal,
			"discount":    order.Totals.Discount,
			"shipping":    order.Totals.Shipping,
			"total":       order.Totals.Total,
		},
		InvoicePath: invoicePath,
		EnqueuedAt:  s.clock(),
	})
	if err != nil {
		s.logger(ctx, "checkout.confirmation.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
	}
	return err
}
