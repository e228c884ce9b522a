package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type stubInvoiceStore struct {
	writeFn func(ctx context.Context, objectPath string, contentType string, data []byte) error
}

func (s *stubInvoiceStore) Write(ctx context.Context, objectPath string, contentType string, data []byte) error {
	if s.writeFn == nil {
		return nil
	}
	return s.writeFn(ctx, objectPath, contentType, data)
}

type stubInvoiceSigner struct {
	signFn func(ctx context.Context, objectPath string, expiresIn time.Duration) (string, error)
}

func (s *stubInvoiceSigner) SignedDownloadURL(ctx context.Context, objectPath string, expiresIn time.Duration) (string, error) {
	if s.signFn == nil {
		return "", errors.New("signer not configured")
	}
	return s.signFn(ctx, objectPath, expiresIn)
}

func invoiceTestOrder() Order {
	return Order{
		ID:           "ord_1",
		Number:       "SW-1042",
		UserID:       "user-1",
		CustomerName: "Aiko Tanaka",
		Address:      "1-2-3 Chuo, Osaka",
		Items: Cart{
			"potato-chips-salt": {UnitPrice: 300, Quantity: 2},
			"wasabi-peas":       {UnitPrice: 450, Quantity: 1},
		},
		Totals: OrderTotals{
			Subtotal: 1050,
			Discount: 100,
			Shipping: 0,
			Total:    950,
		},
		CouponCode: "SNACK10",
		CreatedAt:  time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestInvoiceServiceRequiresStore(t *testing.T) {
	if _, err := NewInvoiceService(InvoiceServiceDeps{}); err == nil {
		t.Fatal("expected constructor error without store")
	}
}

func TestInvoiceBuildStoresRenderedDocument(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody []byte
	store := &stubInvoiceStore{
		writeFn: func(_ context.Context, objectPath string, contentType string, data []byte) error {
			gotPath = objectPath
			gotContentType = contentType
			gotBody = data
			return nil
		},
	}

	svc, err := NewInvoiceService(InvoiceServiceDeps{Store: store})
	if err != nil {
		t.Fatalf("NewInvoiceService: %v", err)
	}

	artifact, err := svc.Build(context.Background(), invoiceTestOrder())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if gotPath != "invoices/ord_1.html" {
		t.Fatalf("object path = %q, want invoices/ord_1.html", gotPath)
	}
	if artifact.ObjectPath != gotPath {
		t.Fatalf("artifact path = %q, want %q", artifact.ObjectPath, gotPath)
	}
	if artifact.SignedURL != "" {
		t.Fatalf("expected no signed URL without signer, got %q", artifact.SignedURL)
	}
	if !strings.HasPrefix(gotContentType, "text/html") {
		t.Fatalf("content type = %q, want text/html", gotContentType)
	}

	body := string(gotBody)
	for _, want := range []string{"SW-1042", "Aiko Tanaka", "potato-chips-salt", "SNACK10", "950.00"} {
		if !strings.Contains(body, want) {
			t.Fatalf("rendered invoice missing %q:\n%s", want, body)
		}
	}
}

func TestInvoiceBuildUsesObjectPathOverride(t *testing.T) {
	var gotPath string
	store := &stubInvoiceStore{
		writeFn: func(_ context.Context, objectPath string, _ string, _ []byte) error {
			gotPath = objectPath
			return nil
		},
	}

	svc, err := NewInvoiceService(InvoiceServiceDeps{
		Store: store,
		ObjectPath: func(order Order) (string, error) {
			return "orders/" + order.ID + "/invoices/" + order.Number + ".html", nil
		},
	})
	if err != nil {
		t.Fatalf("NewInvoiceService: %v", err)
	}

	artifact, err := svc.Build(context.Background(), invoiceTestOrder())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	want := "orders/ord_1/invoices/SW-1042.html"
	if gotPath != want || artifact.ObjectPath != want {
		t.Fatalf("object path = %q / %q, want %q", gotPath, artifact.ObjectPath, want)
	}
}

func TestInvoiceBuildObjectPathError(t *testing.T) {
	svc, err := NewInvoiceService(InvoiceServiceDeps{
		Store: &stubInvoiceStore{},
		ObjectPath: func(Order) (string, error) {
			return "", errors.New("bad path")
		},
	})
	if err != nil {
		t.Fatalf("NewInvoiceService: %v", err)
	}
	if _, err := svc.Build(context.Background(), invoiceTestOrder()); err == nil {
		t.Fatal("expected error when object path cannot be built")
	}
}

func TestInvoiceBuildSignsURL(t *testing.T) {
	var gotExpiry time.Duration
	signer := &stubInvoiceSigner{
		signFn: func(_ context.Context, objectPath string, expiresIn time.Duration) (string, error) {
			gotExpiry = expiresIn
			return "https://storage.example.com/" + objectPath + "?sig=abc", nil
		},
	}

	svc, err := NewInvoiceService(InvoiceServiceDeps{
		Store:     &stubInvoiceStore{},
		Signer:    signer,
		URLExpiry: 72 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewInvoiceService: %v", err)
	}

	artifact, err := svc.Build(context.Background(), invoiceTestOrder())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if gotExpiry != 72*time.Hour {
		t.Fatalf("sign expiry = %v, want 72h", gotExpiry)
	}
	if !strings.Contains(artifact.SignedURL, "invoices/ord_1.html") {
		t.Fatalf("signed URL = %q, want it to reference the invoice object", artifact.SignedURL)
	}
}

func TestInvoiceBuildSignerFailureIsNotFatal(t *testing.T) {
	signer := &stubInvoiceSigner{
		signFn: func(context.Context, string, time.Duration) (string, error) {
			return "", errors.New("signing backend down")
		},
	}

	svc, err := NewInvoiceService(InvoiceServiceDeps{Store: &stubInvoiceStore{}, Signer: signer})
	if err != nil {
		t.Fatalf("NewInvoiceService: %v", err)
	}

	artifact, err := svc.Build(context.Background(), invoiceTestOrder())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if artifact.ObjectPath == "" {
		t.Fatal("expected artifact object path despite signer failure")
	}
	if artifact.SignedURL != "" {
		t.Fatalf("expected empty signed URL, got %q", artifact.SignedURL)
	}
}

func TestInvoiceBuildRejectsInvalidOrder(t *testing.T) {
	svc, err := NewInvoiceService(InvoiceServiceDeps{Store: &stubInvoiceStore{}})
	if err != nil {
		t.Fatalf("NewInvoiceService: %v", err)
	}

	if _, err := svc.Build(context.Background(), Order{}); !errors.Is(err, ErrInvoiceInvalidInput) {
		t.Fatalf("expected ErrInvoiceInvalidInput for empty order, got %v", err)
	}

	order := invoiceTestOrder()
	order.Items = nil
	if _, err := svc.Build(context.Background(), order); !errors.Is(err, ErrInvoiceInvalidInput) {
		t.Fatalf("expected ErrInvoiceInvalidInput for empty cart, got %v", err)
	}

	store := &stubInvoiceStore{
		writeFn: func(context.Context, string, string, []byte) error {
			return errors.New("bucket unavailable")
		},
	}
	svc, err = NewInvoiceService(InvoiceServiceDeps{Store: store})
	if err != nil {
		t.Fatalf("NewInvoiceService: %v", err)
	}
	if _, err := svc.Build(context.Background(), invoiceTestOrder()); err == nil {
		t.Fatal("expected error when store write fails")
	}
}
