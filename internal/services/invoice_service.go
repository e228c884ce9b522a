package services

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"
)

// ErrInvoiceInvalidInput signals an order that cannot be invoiced.
var ErrInvoiceInvalidInput = errors.New("invoice: invalid input")

// InvoiceStore persists rendered invoice documents.
type InvoiceStore interface {
	Write(ctx context.Context, objectPath string, contentType string, data []byte) error
}

// InvoiceURLSigner issues a time-limited download URL for a stored invoice.
type InvoiceURLSigner interface {
	SignedDownloadURL(ctx context.Context, objectPath string, expiresIn time.Duration) (string, error)
}

// InvoiceServiceDeps bundles collaborators for the invoice builder.
// ObjectPath overrides where a rendered invoice is stored; when nil the
// document lands at invoices/<orderID>.html.
type InvoiceServiceDeps struct {
	Store      InvoiceStore
	Signer     InvoiceURLSigner
	ObjectPath func(order Order) (string, error)
	URLExpiry  time.Duration
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type invoiceService struct {
	store      InvoiceStore
	signer     InvoiceURLSigner
	objectPath func(Order) (string, error)
	urlExpiry  time.Duration
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewInvoiceService wires the invoice builder backed by the provided store.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceBuilder, error) {
	if deps.Store == nil {
		return nil, errors.New("invoice service: store is required")
	}
	expiry := deps.URLExpiry
	if expiry <= 0 {
		expiry = 7 * 24 * time.Hour
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	objectPath := deps.ObjectPath
	if objectPath == nil {
		objectPath = func(order Order) (string, error) {
			return fmt.Sprintf("invoices/%s.html", order.ID), nil
		}
	}
	return &invoiceService{
		store:      deps.Store,
		signer:     deps.Signer,
		objectPath: objectPath,
		urlExpiry:  expiry,
		clock:      func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// Build renders the invoice from the order snapshot and uploads it. The order
// snapshot is immutable after creation, so rendering is deterministic for a
// given order.
func (s *invoiceService) Build(ctx context.Context, order Order) (InvoiceArtifact, error) {
	if strings.TrimSpace(order.ID) == "" {
		return InvoiceArtifact{}, fmt.Errorf("%w: order id is required", ErrInvoiceInvalidInput)
	}
	if len(order.Items) == 0 {
		return InvoiceArtifact{}, fmt.Errorf("%w: order has no items", ErrInvoiceInvalidInput)
	}

	document, err := renderInvoice(order)
	if err != nil {
		return InvoiceArtifact{}, fmt.Errorf("invoice: render %s: %w", order.ID, err)
	}

	objectPath, err := s.objectPath(order)
	if err != nil {
		return InvoiceArtifact{}, fmt.Errorf("invoice: object path %s: %w", order.ID, err)
	}
	if err := s.store.Write(ctx, objectPath, "text/html; charset=utf-8", document); err != nil {
		return InvoiceArtifact{}, fmt.Errorf("invoice: store %s: %w", order.ID, err)
	}

	artifact := InvoiceArtifact{ObjectPath: objectPath}
	if s.signer != nil {
		url, err := s.signer.SignedDownloadURL(ctx, objectPath, s.urlExpiry)
		if err != nil {
			s.logger(ctx, "invoice.sign.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
		} else {
			artifact.SignedURL = url
		}
	}

	s.logger(ctx, "invoice.stored", map[string]any{
		"order":  order.ID,
		"object": objectPath,
	})
	return artifact, nil
}

var invoiceTemplate = template.Must(template.New("invoice").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Invoice {{.Number}}</title></head>
<body>
<h1>Invoice {{.Number}}</h1>
<p>Order {{.OrderID}} placed {{.PlacedAt}}</p>
<p>{{.CustomerName}}<br>{{.Address}}</p>
<table>
<tr><th>Product</th><th>Qty</th><th>Unit price</th><th>Amount</th></tr>
{{range .Lines}}<tr><td>{{.Product}}</td><td>{{.Quantity}}</td><td>{{.UnitPrice}}</td><td>{{.Amount}}</td></tr>
{{end}}</table>
<p>Subtotal: {{.Subtotal}}</p>
{{if .CouponCode}}<p>Discount ({{.CouponCode}}): -{{.Discount}}</p>{{end}}
<p>Shipping: {{.Shipping}}</p>
<p><strong>Total: {{.Total}}</strong></p>
</body>
</html>
`))

type invoiceLine struct {
	Product   string
	Quantity  int
	UnitPrice string
	Amount    string
}

type invoiceView struct {
	Number       string
	OrderID      string
	PlacedAt     string
	CustomerName string
	Address      string
	Lines        []invoiceLine
	Subtotal     string
	CouponCode   string
	Discount     string
	Shipping     string
	Total        string
}

func renderInvoice(order Order) ([]byte, error) {
	productIDs := make([]string, 0, len(order.Items))
	for productID := range order.Items {
		productIDs = append(productIDs, productID)
	}
	sort.Strings(productIDs)

	lines := make([]invoiceLine, 0, len(productIDs))
	for _, productID := range productIDs {
		item := order.Items[productID]
		lines = append(lines, invoiceLine{
			Product:   productID,
			Quantity:  item.Quantity,
			UnitPrice: formatAmount(item.UnitPrice),
			Amount:    formatAmount(item.UnitPrice * int64(item.Quantity)),
		})
	}

	view := invoiceView{
		Number:       order.Number,
		OrderID:      order.ID,
		PlacedAt:     order.CreatedAt.Format("2006-01-02"),
		CustomerName: order.CustomerName,
		Address:      order.Address,
		Lines:        lines,
		Subtotal:     formatAmount(order.Totals.Subtotal),
		CouponCode:   order.CouponCode,
		Discount:     formatAmount(order.Totals.Discount),
		Shipping:     formatAmount(order.Totals.Shipping),
		Total:        formatAmount(order.Totals.Total),
	}

	var b strings.Builder
	if err := invoiceTemplate.Execute(&b, view); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// Amounts are whole currency units; clients display two fractional digits.
func formatAmount(value int64) string {
	return fmt.Sprintf("%d.00", value)
}
