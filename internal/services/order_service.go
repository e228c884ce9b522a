package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/snackworks/api/internal/domain"
	"github.com/snackworks/api/internal/repositories"
)

const orderIDPrefix = "ord_"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition indicates a disallowed status transition was attempted.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates concurrent status mutations or duplicate inserts.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderForbidden indicates the caller does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
)

// orderStateTransitions is the closed transition table: forward progress
// through fulfilment, with cancellation as the only branch. Delivered and
// cancelled are terminal.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
}

var knownOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusProcessing: true,
	domain.OrderStatusShipped:    true,
	domain.OrderStatusDelivered:  true,
	domain.OrderStatusCancelled:  true,
}

var transitionNotifications = map[domain.OrderStatus]domain.NotificationKind{
	domain.OrderStatusShipped:   domain.NotificationShipped,
	domain.OrderStatusDelivered: domain.NotificationDelivered,
	domain.OrderStatusCancelled: domain.NotificationCancelled,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Users         repositories.UserRepository
	Counters      repositories.CounterRepository
	Notifications NotificationDispatcher
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	users         repositories.UserRepository
	counters      repositories.CounterRepository
	notifications NotificationDispatcher
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:        deps.Orders,
		users:         deps.Users,
		counters:      deps.Counters,
		notifications: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Create snapshots the priced cart into a new order with status processing.
// The repository insert is atomic: either the full record lands or nothing
// does. Confirmation dispatch is the checkout service's responsibility so the
// per-order ordering guarantee (confirmation before any status email) holds
// by program order.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: cart snapshot must not be empty", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.CustomerName) == "" {
		return Order{}, fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Address) == "" {
		return Order{}, fmt.Errorf("%w: address is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.PaymentRef) == "" {
		return Order{}, fmt.Errorf("%w: payment reference is required", ErrOrderInvalidInput)
	}
	if cmd.Totals.Total < 0 || cmd.Totals.Discount < 0 || cmd.Totals.Discount > cmd.Totals.Subtotal {
		return Order{}, fmt.Errorf("%w: totals out of range", ErrOrderInvalidInput)
	}

	now := s.clock()
	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:           orderIDPrefix + s.newID(),
		Number:       number,
		UserID:       userID,
		CustomerName: strings.TrimSpace(cmd.CustomerName),
		Phone:        strings.TrimSpace(cmd.Phone),
		Address:      strings.TrimSpace(cmd.Address),
		Items:        cmd.Items.Clone(),
		Totals:       cmd.Totals,
		CouponCode:   strings.TrimSpace(cmd.CouponCode),
		PaymentRef:   strings.TrimSpace(cmd.PaymentRef),
		Status:       domain.OrderStatusProcessing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.created", map[string]any{
		"order":  order.ID,
		"number": order.Number,
		"user":   order.UserID,
		"total":  order.Totals.Total,
	})
	return order, nil
}

// Get loads one order. Non-admin callers must own the order; a foreign order
// surfaces as not found to avoid leaking its existence.
func (s *orderService) Get(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !cmd.Admin && order.UserID != strings.TrimSpace(cmd.UserID) {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// ListByUser returns the user's orders newest first.
func (s *orderService) ListByUser(ctx context.Context, userID string, filter OrderListFilter) (domain.CursorPage[Order], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.ListByUser(ctx, userID, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// Transition advances the order through the lifecycle. Repeating the current
// status is an idempotent no-op that dispatches nothing, so repeated admin
// clicks cannot duplicate emails. A committed transition dispatches exactly
// one notification; dispatch failure is logged and reported as a degraded
// success, never a rollback.
func (s *orderService) Transition(ctx context.Context, cmd OrderTransitionCommand) (OrderTransitionResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderTransitionResult{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	next := domain.OrderStatus(strings.ToLower(strings.TrimSpace(string(cmd.Next))))
	if !knownOrderStatuses[next] {
		return OrderTransitionResult{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Next)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderTransitionResult{}, s.mapRepositoryError(err)
	}
	current := order.Status

	result := OrderTransitionResult{
		OrderID:        orderID,
		PreviousStatus: current,
		NewStatus:      next,
	}

	if next == current {
		result.NoOp = true
		s.logger(ctx, "order.status.noop", map[string]any{
			"order":  orderID,
			"status": string(current),
		})
		return result, nil
	}

	if !canTransition(current, next) {
		return OrderTransitionResult{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidTransition, current, next)
	}

	now := s.clock()
	update := repositories.OrderStatusUpdate{UpdatedAt: now}
	switch next {
	case domain.OrderStatusShipped:
		update.ShippedAt = &now
	case domain.OrderStatusDelivered:
		update.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		update.CancelledAt = &now
	}

	previous, err := s.orders.UpdateStatus(ctx, orderID, next, current, update)
	if err != nil {
		return OrderTransitionResult{}, s.mapRepositoryError(err)
	}
	result.PreviousStatus = previous

	s.logger(ctx, "order.status.changed", map[string]any{
		"order": orderID,
		"from":  string(previous),
		"to":    string(next),
		"actor": strings.TrimSpace(cmd.ActorID),
	})

	result.NotificationSent, result.NotificationErr = s.dispatchTransitionNotification(ctx, order, next, now)
	return result, nil
}

// Delete removes the order record. This is an explicit administrative action,
// deliberately decoupled from cancellation so cancelled orders remain on
// record.
func (s *orderService) Delete(ctx context.Context, cmd DeleteOrderCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if err := s.orders.Delete(ctx, orderID); err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "order.deleted", map[string]any{
		"order": orderID,
		"actor": strings.TrimSpace(cmd.ActorID),
	})
	return nil
}

func (s *orderService) dispatchTransitionNotification(ctx context.Context, order Order, next domain.OrderStatus, now time.Time) (bool, error) {
	kind, ok := transitionNotifications[next]
	if !ok {
		return false, nil
	}
	if s.notifications == nil {
		s.logger(ctx, "order.notification.skipped", map[string]any{
			"order": order.ID,
			"kind":  string(kind),
		})
		return false, nil
	}

	recipient := s.recipientFor(ctx, order.UserID)
	notification := domain.Notification{
		Kind:      kind,
		OrderID:   order.ID,
		Recipient: recipient,
		Payload: map[string]any{
			"orderNumber": order.Number,
			"status":      string(next),
			"total":       order.Totals.Total,
		},
		EnqueuedAt: now,
	}
	if err := s.notifications.Send(ctx, notification); err != nil {
		s.logger(ctx, "order.notification.failed", map[string]any{
			"order": order.ID,
			"kind":  string(kind),
			"error": err.Error(),
		})
		return false, err
	}
	return true, nil
}

func (s *orderService) recipientFor(ctx context.Context, userID string) string {
	if s.users == nil {
		return ""
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger(ctx, "order.recipient.lookup.failed", map[string]any{
			"user":  userID,
			"error": err.Error(),
		})
		return ""
	}
	return user.Email
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", fmt.Errorf("order: allocate order number: %w", err)
	}
	return fmt.Sprintf("SW-%04d-%06d", now.Year(), seq), nil
}

func canTransition(current, next domain.OrderStatus) bool {
	for _, allowed := range orderStateTransitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}
