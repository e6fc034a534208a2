package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
	pkgredis "github.com/aidigitalagency/storefront-backend/pkg/redis"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", pkgredis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	return true, f.Set(ctx, key, value, ttl)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "fake:" + scope + ":" + id
}

func idempotentRequest(method, url, pattern, key, body string) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func createOrder(key, body string) *http.Request {
	return idempotentRequest(http.MethodPost, "/api/v1/orders", "/api/v1/orders/", key, body)
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestIdempotencyTTLByRoute(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"create order", http.MethodPost, "/api/v1/orders/", 7 * 24 * time.Hour, true},
		{"payment session", http.MethodPost, "/api/v1/orders/{orderId}/payments/{provider}", 24 * time.Hour, true},
		{"admin status", http.MethodPatch, "/api/v1/admin/orders/{orderId}/status", 24 * time.Hour, true},
		{"anomaly resolve", http.MethodPost, "/api/v1/admin/anomalies/{anomalyId}/resolve", 24 * time.Hour, true},
		{"public read", http.MethodGet, "/api/v1/orders/{orderId}", 0, false},
		{"webhook", http.MethodPost, "/api/v1/webhooks/cashfree", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := idempotencyTTL(idempotentRequest(tt.method, "/x", tt.pattern, "", ""))
		if ok != tt.ok || ttl != tt.want {
			t.Fatalf("%s: expected (%v, %v) got (%v, %v)", tt.name, tt.want, tt.ok, ttl, ok)
		}
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without an idempotency key")
	})
	mw := Idempotency(newFakeStore(), logger.Nop())

	for _, key := range []string{"", strings.Repeat("k", maxIdempotencyKeyLen+1)} {
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, createOrder(key, `{"service":"seo"}`))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d", rec.Code)
		}
	}
}

func TestIdempotencyReplaysRecordedResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, logger.Nop())
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"ord_1"}}`))
	})

	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, createOrder("abc", `{"service":"seo"}`))
	if first.Code != http.StatusCreated || first.Header().Get(ReplayedHeader) != "" {
		t.Fatalf("unexpected first response %d %v", first.Code, first.Header())
	}

	again := httptest.NewRecorder()
	mw(handler).ServeHTTP(again, createOrder("abc", `{"service":"seo"}`))
	if again.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", again.Code)
	}
	if again.Header().Get("Content-Type") != "application/json" || again.Header().Get(ReplayedHeader) != "true" {
		t.Fatalf("unexpected replay headers %v", again.Header())
	}
	if again.Body.String() != `{"data":{"id":"ord_1"}}` {
		t.Fatalf("expected recorded body got %s", again.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
	if ttl := store.ttls["fake:|POST|/api/v1/orders:abc"]; ttl != 7*24*time.Hour {
		t.Fatalf("expected create-order ttl, got %v", ttl)
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	mw := Idempotency(newFakeStore(), logger.Nop())
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), createOrder("xyz", `{"service":"seo"}`))

	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, createOrder("xyz", `{"service":"video"}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, code)
	}
}

func TestIdempotencyConflictsWhileInFlight(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, logger.Nop())

	var inner *httptest.ResponseRecorder
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inner == nil {
			inner = httptest.NewRecorder()
			mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("duplicate must not reach the handler")
			})).ServeHTTP(inner, createOrder("dup", `{"service":"seo"}`))
		}
		w.WriteHeader(http.StatusCreated)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), createOrder("dup", `{"service":"seo"}`))
	if inner.Code != http.StatusConflict || errorCode(t, inner) != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected in-progress conflict, got %d %s", inner.Code, inner.Body.String())
	}
	if ttl := store.ttls["fake:|POST|/api/v1/orders:dup"]; ttl != 7*24*time.Hour {
		t.Fatalf("finished response should replace the pending claim, ttl %v", ttl)
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, logger.Nop())
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		mw(handler).ServeHTTP(httptest.NewRecorder(), createOrder("retry-me", `{"service":"seo"}`))
	}
	if calls != 2 {
		t.Fatalf("expected handler to run again after a 503, ran %d times", calls)
	}
}

func TestIdempotencyScopesByUser(t *testing.T) {
	mw := Idempotency(newFakeStore(), logger.Nop())
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	for _, user := range []string{"user-a", "user-b"} {
		req := createOrder("shared", `{"service":"seo"}`)
		req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: user}))
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected independent scopes per user, handler ran %d times", calls)
	}
}

func TestIdempotencySkipsOtherRoutes(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ })
	mw := Idempotency(newFakeStore(), logger.Nop())

	req := idempotentRequest(http.MethodGet, "/api/v1/orders/ord_1", "/api/v1/orders/{orderId}", "", "")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	if calls != 1 {
		t.Fatal("unlisted routes pass straight through")
	}
}
