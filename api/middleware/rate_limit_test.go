package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

func throttledOK(policy RateLimitPolicy, store rateLimiterStore) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return chimw.RealIP(RateLimit(policy, store, logger.Nop())(ok))
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	store := newFakeRateStore()
	handler := throttledOK(NewRateLimitPolicy("checkout", time.Minute, 2, 2), store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.counts["sf:rl:ip:checkout:1.2.3.4"] != 1 {
		t.Fatalf("counts = %v", store.counts)
	}
}

func TestRateLimitUserCounterTriggers(t *testing.T) {
	store := newFakeRateStore()
	handler := throttledOK(NewRateLimitPolicy(" Checkout ", time.Minute, 0, 2), store)

	for i := range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
		req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: "user-1"}))
		req.RemoteAddr = fmt.Sprintf("10.0.0.%d:1234", i+1)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i < 2 {
			if rec.Code != http.StatusOK {
				t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
			}
			continue
		}
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		if got := rec.Header().Get("Retry-After"); got != "60" {
			t.Fatalf("Retry-After = %q", got)
		}
		var payload struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
			t.Fatalf("unexpected code: %s", payload.Error.Code)
		}
	}
	if store.counts["sf:rl:user:checkout:user-1"] != 3 {
		t.Fatalf("counts = %v", store.counts)
	}
}

func TestRateLimitCountsForwardedAddress(t *testing.T) {
	store := newFakeRateStore()
	handler := throttledOK(NewRateLimitPolicy("checkout", time.Minute, 1, 0), store)

	for i := range 2 {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
		req.Header.Set("X-Forwarded-For", "5.6.7.8, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		want := http.StatusOK
		if i == 1 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, rec.Code)
		}
	}
	if store.counts["sf:rl:ip:checkout:5.6.7.8"] != 2 {
		t.Fatalf("expected forwarded address to be counted, got %v", store.counts)
	}
}

func TestRateLimitSkipsUserCounterWithoutIdentity(t *testing.T) {
	store := newFakeRateStore()
	handler := throttledOK(NewRateLimitPolicy("", time.Minute, 0, 1), store)

	for range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
	if len(store.counts) != 0 {
		t.Fatalf("anonymous requests counted: %v", store.counts)
	}
}

func TestRateLimitStoreFailureIsDependencyError(t *testing.T) {
	store := newFakeRateStore()
	store.err = errors.New("redis down")
	handler := throttledOK(NewRateLimitPolicy("checkout", time.Minute, 1, 0), store)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	for _, policy := range []RateLimitPolicy{
		NewRateLimitPolicy("checkout", 0, 1, 1),
		NewRateLimitPolicy("checkout", time.Minute, 0, 0),
	} {
		called := false
		handler := RateLimit(policy, nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			called = true
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
		if !called {
			t.Fatalf("policy %+v blocked the request", policy)
		}
	}
}

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (f *fakeRateStore) CountWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}
