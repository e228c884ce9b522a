package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/snackworks/api/internal/domain"
)

const notificationIDPrefix = "ntf_"

var (
	// ErrNotificationInvalidInput signals a malformed notification job.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
	// ErrNotificationPublishFailed wraps delivery-pipeline failures. Callers
	// treat it as a degraded success once their own state change committed.
	ErrNotificationPublishFailed = errors.New("notification: publish failed")
)

var notificationSubjects = map[domain.NotificationKind]string{
	domain.NotificationConfirmation: "Your order is confirmed",
	domain.NotificationShipped:      "Your order is on its way",
	domain.NotificationDelivered:    "Your order has been delivered",
	domain.NotificationCancelled:    "Your order has been cancelled",
	domain.NotificationDeletionCode: "Confirm your account deletion",
}

// NotificationPublisher hands serialized email jobs to the delivery pipeline.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, notification domain.Notification) (string, error)
}

// NotificationServiceDeps bundles collaborators for the dispatcher.
type NotificationServiceDeps struct {
	Publisher   NotificationPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	publisher NotificationPublisher
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewNotificationService wires the dispatcher that feeds the mailer worker.
func NewNotificationService(deps NotificationServiceDeps) (NotificationDispatcher, error) {
	if deps.Publisher == nil {
		return nil, errors.New("notification service: publisher is required")
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
	return &notificationService{
		publisher: deps.Publisher,
		clock:     func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// Send validates and publishes the email job. The publish happens after the
// triggering write has committed; a failure here is logged with the order and
// notification identifiers and wrapped in ErrNotificationPublishFailed so the
// caller can downgrade it without losing the cause.
func (s *notificationService) Send(ctx context.Context, notification domain.Notification) error {
	subject, ok := notificationSubjects[notification.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrNotificationInvalidInput, notification.Kind)
	}
	if strings.TrimSpace(notification.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrNotificationInvalidInput)
	}
	if notification.Kind == domain.NotificationConfirmation && strings.TrimSpace(notification.InvoicePath) == "" {
		// Invoice rendering can fail after the order has committed; the
		// confirmation still goes out, just without the attachment.
		s.logger(ctx, "notification.confirmation.no_invoice", map[string]any{
			"order": notification.OrderID,
		})
	}

	if strings.TrimSpace(notification.ID) == "" {
		notification.ID = notificationIDPrefix + s.newID()
	}
	if notification.Subject == "" {
		notification.Subject = subject
	}
	if notification.EnqueuedAt.IsZero() {
		notification.EnqueuedAt = s.clock()
	}

	messageID, err := s.publisher.PublishNotification(ctx, notification)
	if err != nil {
		s.logger(ctx, "notification.publish.failed", map[string]any{
			"notification": notification.ID,
			"kind":         string(notification.Kind),
			"order":        notification.OrderID,
			"error":        err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrNotificationPublishFailed, err)
	}

	s.logger(ctx, "notification.enqueued", map[string]any{
		"notification": notification.ID,
		"kind":         string(notification.Kind),
		"order":        notification.OrderID,
		"message":      messageID,
	})
	return nil
}
