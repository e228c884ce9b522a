package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/snackworks/api/internal/domain"
	"github.com/snackworks/api/internal/repositories"
)

func fixedOrderClock() func() time.Time {
	at := time.Date(2026, time.April, 2, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepository{}
	}
	if deps.Counters == nil {
		deps.Counters = &stubCounterRepository{}
	}
	if deps.Clock == nil {
		deps.Clock = fixedOrderClock()
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "01TESTORDER" }
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func TestOrderService_CreateSnapshotsCart(t *testing.T) {
	ctx := context.Background()

	var inserted domain.Order
	orders := &stubOrderRepository{
		insertFn: func(_ context.Context, order domain.Order) error {
			inserted = order
			return nil
		},
	}
	counters := &stubCounterRepository{
		nextFn: func(_ context.Context, counterID string, step int64) (int64, error) {
			if counterID != "orders" {
				t.Fatalf("counter id = %q, want orders", counterID)
			}
			return 42, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Counters: counters})

	items := Cart{"makhana-plain": {UnitPrice: 200, Quantity: 2}}
	order, err := svc.Create(ctx, CreateOrderCommand{
		UserID:       "user-1",
		CustomerName: "Asha",
		Phone:        "+91-9999999999",
		Address:      "12 Lake Road",
		Items:        items,
		Totals:       domain.OrderTotals{Subtotal: 400, Discount: 0, Shipping: 99, Total: 499},
		PaymentRef:   "pi_123",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("status = %q, want processing", order.Status)
	}
	if !strings.HasPrefix(order.ID, "ord_") {
		t.Fatalf("id = %q, want ord_ prefix", order.ID)
	}
	if order.Number != "SW-2026-000042" {
		t.Fatalf("number = %q, want SW-2026-000042", order.Number)
	}
	if inserted.ID != order.ID {
		t.Fatal("order was not inserted")
	}

	// Snapshot must be detached from the caller's cart.
	items["makhana-plain"] = CartLine{UnitPrice: 1, Quantity: 1}
	if inserted.Items["makhana-plain"].UnitPrice != 200 {
		t.Fatal("order items must be a copy of the cart")
	}
}

func TestOrderService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestOrderService(t, OrderServiceDeps{})

	valid := CreateOrderCommand{
		UserID:       "user-1",
		CustomerName: "Asha",
		Address:      "12 Lake Road",
		Items:        Cart{"makhana-plain": {UnitPrice: 100, Quantity: 1}},
		Totals:       domain.OrderTotals{Subtotal: 100, Shipping: 99, Total: 199},
		PaymentRef:   "pi_123",
	}

	tests := []struct {
		name   string
		mutate func(cmd *CreateOrderCommand)
	}{
		{"missing user", func(c *CreateOrderCommand) { c.UserID = " " }},
		{"empty cart", func(c *CreateOrderCommand) { c.Items = nil }},
		{"missing name", func(c *CreateOrderCommand) { c.CustomerName = "" }},
		{"missing address", func(c *CreateOrderCommand) { c.Address = "" }},
		{"missing payment ref", func(c *CreateOrderCommand) { c.PaymentRef = "" }},
		{"discount exceeds subtotal", func(c *CreateOrderCommand) { c.Totals.Discount = 500 }},
		{"negative total", func(c *CreateOrderCommand) { c.Totals.Total = -1 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := valid
			tc.mutate(&cmd)
			if _, err := svc.Create(ctx, cmd); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("error = %v, want ErrOrderInvalidInput", err)
			}
		})
	}
}

func TestOrderService_GetHidesForeignOrders(t *testing.T) {
	ctx := context.Background()

	orders := &stubOrderRepository{
		findByIDFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "owner"}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	if _, err := svc.Get(ctx, GetOrderCommand{OrderID: "ord_1", UserID: "owner"}); err != nil {
		t.Fatalf("owner Get returned error: %v", err)
	}
	if _, err := svc.Get(ctx, GetOrderCommand{OrderID: "ord_1", UserID: "intruder"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("foreign Get error = %v, want ErrOrderNotFound", err)
	}
	if _, err := svc.Get(ctx, GetOrderCommand{OrderID: "ord_1", UserID: "intruder", Admin: true}); err != nil {
		t.Fatalf("admin Get returned error: %v", err)
	}
}

func TestOrderService_TransitionDispatchesExactlyOnce(t *testing.T) {
	ctx := context.Background()

	orders := &stubOrderRepository{
		findByIDFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{
				ID:     orderID,
				Number: "SW-2026-000007",
				UserID: "user-1",
				Status: domain.OrderStatusProcessing,
				Totals: domain.OrderTotals{Total: 499},
			}, nil
		},
	}
	users := &stubUserRepository{
		findByIDFn: func(_ context.Context, userID string) (domain.User, error) {
			return domain.User{UID: userID, Email: "asha@example.com"}, nil
		},
	}
	dispatcher := &captureDispatcher{}
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:        orders,
		Users:         users,
		Notifications: dispatcher,
	})

	result, err := svc.Transition(ctx, OrderTransitionCommand{OrderID: "ord_1", Next: domain.OrderStatusShipped, ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("Transition returned error: %v", err)
	}
	if result.NoOp {
		t.Fatal("transition should not be a no-op")
	}
	if result.PreviousStatus != domain.OrderStatusProcessing {
		t.Fatalf("previous status = %q, want processing", result.PreviousStatus)
	}
	if !result.NotificationSent {
		t.Fatal("notification should be sent")
	}
	if len(dispatcher.sent) != 1 {
		t.Fatalf("notifications sent = %d, want 1", len(dispatcher.sent))
	}
	sent := dispatcher.sent[0]
	if sent.Kind != domain.NotificationShipped {
		t.Fatalf("kind = %q, want shipped", sent.Kind)
	}
	if sent.Recipient != "asha@example.com" {
		t.Fatalf("recipient = %q", sent.Recipient)
	}
}

func TestOrderService_TransitionSameStatusIsSilentNoOp(t *testing.T) {
	ctx := context.Background()

	updates := 0
	orders := &stubOrderRepository{
		findByIDFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "user-1", Status: domain.OrderStatusShipped}, nil
		},
		updateStatusFn: func(_ context.Context, _ string, _ domain.OrderStatus, expected domain.OrderStatus, _ repositories.OrderStatusUpdate) (domain.OrderStatus, error) {
			updates++
			return expected, nil
		},
	}
	dispatcher := &captureDispatcher{}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Notifications: dispatcher})

	result, err := svc.Transition(ctx, OrderTransitionCommand{OrderID: "ord_1", Next: domain.OrderStatusShipped})
	if err != nil {
		t.Fatalf("Transition returned error: %v", err)
	}
	if !result.NoOp {
		t.Fatal("expected no-op result")
	}
	if updates != 0 {
		t.Fatalf("status writes = %d, want 0", updates)
	}
	if len(dispatcher.sent) != 0 {
		t.Fatalf("notifications sent = %d, want 0", len(dispatcher.sent))
	}
}

func TestOrderService_TransitionRejectsIllegalMoves(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		current domain.OrderStatus
		next    domain.OrderStatus
	}{
		{"processing to delivered skips shipped", domain.OrderStatusProcessing, domain.OrderStatusDelivered},
		{"shipped back to processing", domain.OrderStatusShipped, domain.OrderStatusProcessing},
		{"delivered to cancelled", domain.OrderStatusDelivered, domain.OrderStatusCancelled},
		{"cancelled to shipped", domain.OrderStatusCancelled, domain.OrderStatusShipped},
		{"delivered back to shipped", domain.OrderStatusDelivered, domain.OrderStatusShipped},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			orders := &stubOrderRepository{
				findByIDFn: func(_ context.Context, orderID string) (domain.Order, error) {
					return domain.Order{ID: orderID, Status: tc.current}, nil
				},
			}
			svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

			_, err := svc.Transition(ctx, OrderTransitionCommand{OrderID: "ord_1", Next: tc.next})
			if !errors.Is(err, ErrOrderInvalidTransition) {
				t.Fatalf("error = %v, want ErrOrderInvalidTransition", err)
			}
		})
	}
}

func TestOrderService_TransitionUnknownStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestOrderService(t, OrderServiceDeps{})

	_, err := svc.Transition(ctx, OrderTransitionCommand{OrderID: "ord_1", Next: "returned"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("error = %v, want ErrOrderInvalidInput", err)
	}
}

func TestOrderService_TransitionNotificationFailureIsDegradedSuccess(t *testing.T) {
	ctx := context.Background()

	statusWritten := false
	orders := &stubOrderRepository{
		findByIDFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "user-1", Status: domain.OrderStatusProcessing}, nil
		},
		updateStatusFn: func(_ context.Context, _ string, _ domain.OrderStatus, expected domain.OrderStatus, _ repositories.OrderStatusUpdate) (domain.OrderStatus, error) {
			statusWritten = true
			return expected, nil
		},
	}
	users := &stubUserRepository{
		findByIDFn: func(_ context.Context, userID string) (domain.User, error) {
			return domain.User{UID: userID, Email: "asha@example.com"}, nil
		},
	}
	dispatcher := &captureDispatcher{failErr: errDispatchDown}
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:        orders,
		Users:         users,
		Notifications: dispatcher,
	})

	result, err := svc.Transition(ctx, OrderTransitionCommand{OrderID: "ord_1", Next: domain.OrderStatusCancelled})
	if err != nil {
		t.Fatalf("Transition must not fail on notification errors, got: %v", err)
	}
	if !statusWritten {
		t.Fatal("status change must commit before dispatch")
	}
	if result.NotificationSent {
		t.Fatal("notification should be reported unsent")
	}
	if !errors.Is(result.NotificationErr, errDispatchDown) {
		t.Fatalf("notification error = %v, want dispatch failure", result.NotificationErr)
	}
}

func TestOrderService_TransitionConcurrentUpdateConflicts(t *testing.T) {
	ctx := context.Background()

	orders := &stubOrderRepository{
		findByIDFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, Status: domain.OrderStatusProcessing}, nil
		},
		updateStatusFn: func(context.Context, string, domain.OrderStatus, domain.OrderStatus, repositories.OrderStatusUpdate) (domain.OrderStatus, error) {
			return "", stubRepoError{conflict: true}
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	_, err := svc.Transition(ctx, OrderTransitionCommand{OrderID: "ord_1", Next: domain.OrderStatusShipped})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("error = %v, want ErrOrderConflict", err)
	}
}

func TestOrderService_CancellationDoesNotDelete(t *testing.T) {
	ctx := context.Background()

	deleted := false
	orders := &stubOrderRepository{
		findByIDFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "user-1", Status: domain.OrderStatusProcessing}, nil
		},
		deleteFn: func(context.Context, string) error {
			deleted = true
			return nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	if _, err := svc.Transition(ctx, OrderTransitionCommand{OrderID: "ord_1", Next: domain.OrderStatusCancelled}); err != nil {
		t.Fatalf("Transition returned error: %v", err)
	}
	if deleted {
		t.Fatal("cancellation must never delete the order record")
	}

	// Removal is a separate explicit action.
	if err := svc.Delete(ctx, DeleteOrderCommand{OrderID: "ord_1", ActorID: "admin-1"}); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if !deleted {
		t.Fatal("explicit Delete should remove the record")
	}
}
