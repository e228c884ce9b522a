package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/snackworks/api/internal/platform/auth"
)

var fixedTime = time.Date(2026, time.February, 2, 12, 0, 0, 0, time.UTC)

const checkoutBody = `{"lines":[{"product_id":"prod_wasabi_peas","quantity":2}]}`

func checkoutRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestMiddleware_MissingHeader(t *testing.T) {
	middleware := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))

	handlerCalled := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		handlerCalled = true
	})

	rr := httptest.NewRecorder()
	middleware(next).ServeHTTP(rr, checkoutRequest("", checkoutBody))

	if handlerCalled {
		t.Fatal("handler should not be invoked when header is missing")
	}
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_key_required")
}

func TestMiddleware_SkipsNonMutatingMethods(t *testing.T) {
	middleware := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))

	handlerCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	middleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders", nil))

	if !handlerCalled {
		t.Fatal("GET requests should pass through without a key")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestMiddleware_ReplaysStoredCheckoutResponse(t *testing.T) {
	var calls int
	middleware := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order_id":"ord_01"}`))
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, checkoutRequest("ck-abc-123", checkoutBody))

	if calls != 1 {
		t.Fatalf("expected handler to be called once, got %d", calls)
	}
	if rr1.Code != http.StatusCreated {
		t.Fatalf("unexpected first response status: %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, checkoutRequest("ck-abc-123", checkoutBody))

	if calls != 1 {
		t.Fatalf("expected handler not to run again, got %d calls", calls)
	}
	if rr2.Code != http.StatusCreated {
		t.Fatalf("expected replayed status 201, got %d", rr2.Code)
	}
	if rr2.Header().Get(replayHeaderName) != "true" {
		t.Fatalf("expected replay header on second response")
	}
	if got := rr2.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected content-type json, got %s", got)
	}
	if rr2.Body.String() != rr1.Body.String() {
		t.Fatalf("expected replayed body %s, got %s", rr1.Body.String(), rr2.Body.String())
	}
}

func TestMiddleware_KeyReusedForDifferentCartConflicts(t *testing.T) {
	middleware := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, checkoutRequest("ck-same", checkoutBody))
	if rr1.Code != http.StatusCreated {
		t.Fatalf("expected first checkout to succeed, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, checkoutRequest("ck-same", `{"lines":[{"product_id":"prod_matcha_kitkat","quantity":1}]}`))

	if rr2.Code != http.StatusConflict {
		t.Fatalf("expected conflict for reused key, got %d", rr2.Code)
	}
	assertErrorResponse(t, rr2.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddleware_KeysScopedPerUser(t *testing.T) {
	var calls int
	middleware := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	asUser := func(uid string) *http.Request {
		req := checkoutRequest("ck-shared", checkoutBody)
		ctx := auth.WithIdentity(req.Context(), &auth.Identity{UID: uid})
		return req.WithContext(ctx)
	}

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, asUser("user-a"))
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, asUser("user-b"))

	if calls != 2 {
		t.Fatalf("expected both users' checkouts to run, got %d calls", calls)
	}
	if rr2.Header().Get(replayHeaderName) == "true" {
		t.Fatalf("second user's request must not replay the first user's response")
	}
}

func TestMiddleware_PendingReservationReturnsConflict(t *testing.T) {
	store := NewMemoryStore()
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))
	handler := middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be invoked while reservation is pending")
	}))

	req := checkoutRequest("ck-pending", checkoutBody)

	body, err := readAndReplayBody(req)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	requester := requesterID(req.Context())
	fingerprint := requestFingerprint(req, body, requester)
	scoped := scopedKey("ck-pending", requester)
	if _, err := store.Reserve(req.Context(), scoped, fingerprint, fixedTime, time.Hour); err != nil {
		t.Fatalf("failed to seed reservation: %v", err)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for pending reservation, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddleware_ExpiredRecordAllowsRetry(t *testing.T) {
	store := NewMemoryStore()
	now := fixedTime
	var calls int
	middleware := Middleware(store,
		WithClock(func() time.Time { return now }),
		WithTTL(time.Hour),
	)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, checkoutRequest("ck-expiry", checkoutBody))

	now = now.Add(2 * time.Hour)

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, checkoutRequest("ck-expiry", checkoutBody))

	if calls != 2 {
		t.Fatalf("expected handler to run again after expiry, got %d calls", calls)
	}
	if rr2.Header().Get(replayHeaderName) == "true" {
		t.Fatalf("expired record must not be replayed")
	}
}

func TestMiddleware_SaveFailureRollsBackReservation(t *testing.T) {
	store := &stubStore{failSave: true}
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	middleware(next).ServeHTTP(rr, checkoutRequest("ck-fail", checkoutBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 response, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_store_error")
	if !store.released {
		t.Fatalf("expected reservation to be released on failure")
	}
}

type stubStore struct {
	failSave bool
	released bool
}

func (s *stubStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	return Reservation{State: ReservationStateNew}, nil
}

func (s *stubStore) SaveResponse(context.Context, string, string, Response, time.Time, time.Duration) error {
	if s.failSave {
		return errors.New("save failed")
	}
	return nil
}

func (s *stubStore) Release(context.Context, string, string) error {
	s.released = true
	return nil
}

func (s *stubStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func assertErrorResponse(t *testing.T, payload []byte, expected string) {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if body.Error != expected {
		t.Fatalf("expected error code %s, got %s", expected, body.Error)
	}
}
