package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/snackworks/api/internal/domain"
	pfirestore "github.com/snackworks/api/internal/platform/firestore"
	"github.com/snackworks/api/internal/platform/pagination"
	"github.com/snackworks/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists order records in Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert writes the full order document in a single create. Firestore creates
// are atomic per document, so either the whole order lands or nothing does; a
// pre-existing ID surfaces as a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	doc := fromDomainOrder(order)
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("orders.insert", err)
		}
		return nil
	})
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// ListByUser returns the user's orders ordered newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: user id is required")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeOrderListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statusFilters := normaliseOrderStatuses(filter.Status)

	var from, to *time.Time
	if filter.DateRange.From != nil {
		value := filter.DateRange.From.UTC()
		from = &value
	}
	if filter.DateRange.To != nil {
		value := filter.DateRange.To.UTC()
		to = &value
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID)
		if len(statusFilters) == 1 {
			q = q.Where("status", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			if len(statusFilters) > 10 {
				statusFilters = statusFilters[:10]
			}
			q = q.Where("status", "in", statusFilters)
		}
		if from != nil {
			q = q.Where("createdAt", ">=", *from)
		}
		if to != nil {
			q = q.Where("createdAt", "<=", *to)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		valueDocs = valueDocs[:limit]
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		token, err := encodeOrderListToken(tokenTime, last.ID)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: encode page token: %w", err)
		}
		nextToken = token
	}

	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, toDomainOrder(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: nextToken}, nil
}

// UpdateStatus swaps the order status inside a transaction and returns the
// status observed before the write. When expected is non-empty and the stored
// status differs, the transaction aborts so concurrent transitions serialize
// instead of acting on a stale read.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, next domain.OrderStatus, expected domain.OrderStatus, update repositories.OrderStatusUpdate) (domain.OrderStatus, error) {
	if r == nil || r.provider == nil {
		return "", errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", errors.New("order repository: order id is required")
	}
	if strings.TrimSpace(string(next)) == "" {
		return "", errors.New("order repository: next status is required")
	}

	updatedAt := update.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	var previous domain.OrderStatus
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("orders.updateStatus", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("order repository: decode %s: %w", orderID, err)
		}
		previous = domain.OrderStatus(doc.Status)
		if expected != "" && previous != expected {
			return pfirestore.WrapError("orders.updateStatus",
				status.Errorf(codes.Aborted, "order %s status changed concurrently", orderID))
		}

		updates := []firestore.Update{
			{Path: "status", Value: string(next)},
			{Path: "updatedAt", Value: updatedAt},
		}
		if update.ShippedAt != nil {
			updates = append(updates, firestore.Update{Path: "shippedAt", Value: update.ShippedAt.UTC()})
		}
		if update.DeliveredAt != nil {
			updates = append(updates, firestore.Update{Path: "deliveredAt", Value: update.DeliveredAt.UTC()})
		}
		if update.CancelledAt != nil {
			updates = append(updates, firestore.Update{Path: "cancelledAt", Value: update.CancelledAt.UTC()})
		}
		if err := tx.Update(ref, updates); err != nil {
			return pfirestore.WrapError("orders.updateStatus", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

// Delete removes the order document.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("orders.delete", err)
	}
	return nil
}

func normaliseOrderStatuses(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func encodeOrderListToken(createdAt time.Time, orderID string) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), orderID},
	})
}

func decodeOrderListToken(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", errors.New("malformed token cursor")
	}
	rawTime, okTime := cursor.StartAfter[0].(string)
	docID, okID := cursor.StartAfter[1].(string)
	if !okTime || !okID {
		return time.Time{}, "", errors.New("malformed token cursor values")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed token timestamp: %w", err)
	}
	return createdAt.UTC(), docID, nil
}

type orderDocument struct {
	Number       string                      `firestore:"number"`
	UserID       string                      `firestore:"userId"`
	CustomerName string                      `firestore:"customerName"`
	Phone        string                      `firestore:"phone"`
	Address      string                      `firestore:"address"`
	Items        map[string]orderLineDoc     `firestore:"items"`
	Totals       orderTotalsDocument         `firestore:"totals"`
	CouponCode   string                      `firestore:"couponCode,omitempty"`
	PaymentRef   string                      `firestore:"paymentRef"`
	Status       string                      `firestore:"status"`
	InvoicePath  string                      `firestore:"invoicePath,omitempty"`
	CreatedAt    time.Time                   `firestore:"createdAt"`
	UpdatedAt    time.Time                   `firestore:"updatedAt"`
	ShippedAt    *time.Time                  `firestore:"shippedAt,omitempty"`
	DeliveredAt  *time.Time                  `firestore:"deliveredAt,omitempty"`
	CancelledAt  *time.Time                  `firestore:"cancelledAt,omitempty"`
}

type orderLineDoc struct {
	UnitPrice int64 `firestore:"unitPrice"`
	Quantity  int   `firestore:"quantity"`
}

type orderTotalsDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Discount int64 `firestore:"discount"`
	Shipping int64 `firestore:"shipping"`
	Total    int64 `firestore:"total"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	items := make(map[string]orderLineDoc, len(order.Items))
	for id, line := range order.Items {
		items[id] = orderLineDoc{UnitPrice: line.UnitPrice, Quantity: line.Quantity}
	}
	doc := orderDocument{
		Number:       strings.TrimSpace(order.Number),
		UserID:       strings.TrimSpace(order.UserID),
		CustomerName: strings.TrimSpace(order.CustomerName),
		Phone:        strings.TrimSpace(order.Phone),
		Address:      strings.TrimSpace(order.Address),
		Items:        items,
		Totals: orderTotalsDocument{
			Subtotal: order.Totals.Subtotal,
			Discount: order.Totals.Discount,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
		CouponCode:  strings.TrimSpace(order.CouponCode),
		PaymentRef:  strings.TrimSpace(order.PaymentRef),
		Status:      string(order.Status),
		InvoicePath: strings.TrimSpace(order.InvoicePath),
		CreatedAt:   order.CreatedAt.UTC(),
		UpdatedAt:   order.UpdatedAt.UTC(),
	}
	if order.ShippedAt != nil {
		value := order.ShippedAt.UTC()
		doc.ShippedAt = &value
	}
	if order.DeliveredAt != nil {
		value := order.DeliveredAt.UTC()
		doc.DeliveredAt = &value
	}
	if order.CancelledAt != nil {
		value := order.CancelledAt.UTC()
		doc.CancelledAt = &value
	}
	return doc
}

func toDomainOrder(id string, doc orderDocument) domain.Order {
	items := make(domain.Cart, len(doc.Items))
	for productID, line := range doc.Items {
		items[productID] = domain.CartLine{UnitPrice: line.UnitPrice, Quantity: line.Quantity}
	}
	return domain.Order{
		ID:           id,
		Number:       doc.Number,
		UserID:       doc.UserID,
		CustomerName: doc.CustomerName,
		Phone:        doc.Phone,
		Address:      doc.Address,
		Items:        items,
		Totals: domain.OrderTotals{
			Subtotal: doc.Totals.Subtotal,
			Discount: doc.Totals.Discount,
			Shipping: doc.Totals.Shipping,
			Total:    doc.Totals.Total,
		},
		CouponCode:  doc.CouponCode,
		PaymentRef:  doc.PaymentRef,
		Status:      domain.OrderStatus(doc.Status),
		InvoicePath: doc.InvoicePath,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
		ShippedAt:   doc.ShippedAt,
		DeliveredAt: doc.DeliveredAt,
		CancelledAt: doc.CancelledAt,
	}
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
