package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/community-market-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func authed(req *http.Request) *http.Request {
	return req.WithContext(WithUserID(req.Context(), "8d0f8a4e-3c1b-4f43-9a55-1f0b5f0f0c11"))
}

func TestMatchRuleSelection(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		ok       bool
		critical bool
	}{
		{"payment intent", http.MethodPost, "/api/v1/payments/intents", true, true},
		{"resolve", http.MethodPost, "/api/v1/orders/abc/resolve", true, true},
		{"offer accept", http.MethodPost, "/api/v1/orders/abc/refund-offers/def/accept", true, true},
		{"order accept", http.MethodPost, "/api/v1/orders/abc/accept", true, false},
		{"create order", http.MethodPost, "/api/v1/orders", true, false},
		{"offer reject", http.MethodPost, "/api/v1/refund-offers/def/reject", true, false},
		{"order read", http.MethodGet, "/api/v1/orders/abc", false, false},
		{"webhook", http.MethodPost, "/api/v1/webhooks/stripe", false, false},
	}

	for _, tt := range tests {
		rule, ok := matchRule(tt.method, tt.path)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && rule.critical != tt.critical {
			t.Fatalf("%s: expected critical=%v got %v", tt.name, tt.critical, rule.critical)
		}
	}
}

func TestRuleTTL(t *testing.T) {
	if got := (idempotencyRule{critical: true}).ttl(time.Hour); got != criticalIdempotencyTTL {
		t.Fatalf("critical ttl %s", got)
	}
	if got := (idempotencyRule{}).ttl(time.Hour); got != time.Hour {
		t.Fatalf("configured ttl %s", got)
	}
	if got := (idempotencyRule{}).ttl(0); got != defaultIdempotencyTTL {
		t.Fatalf("default ttl %s", got)
	}
}

func TestIdempotencyMiddlewareRunsCriticalRoutesWithoutHeader(t *testing.T) {
	mw := Idempotency(newFakeStore(), 0, nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	for _, target := range []string{
		"/api/v1/payments/intents",
		"/api/v1/orders/abc/resolve",
		"/api/v1/orders/abc/refund-offers/def/accept",
	} {
		req := authed(httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{}`)))
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("%s: expected 201 got %d", target, resp.Code)
		}
	}
	if calls != 3 {
		t.Fatalf("expected every request to reach the handler, got %d", calls)
	}
}

func TestIdempotencyMiddlewarePassesThroughWithoutHeader(t *testing.T) {
	mw := Idempotency(newFakeStore(), 0, nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	for i := 0; i < 2; i++ {
		req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/orders/abc/accept", strings.NewReader(`{}`)))
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected both requests to run, got %d", calls)
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	mw := Idempotency(newFakeStore(), 0, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/payments/intents", strings.NewReader(`{"amountCents":499}`)))
	req.Header.Set("Idempotency-Key", "abc")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", resp.Code)
	}

	replay := authed(httptest.NewRequest(http.MethodPost, "/api/v1/payments/intents", strings.NewReader(`{"amountCents":499}`)))
	replay.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, replay)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareDoesNotStoreServerErrors(t *testing.T) {
	mw := Idempotency(newFakeStore(), 0, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})
	for i := 0; i < 2; i++ {
		req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/payments/intents", strings.NewReader(`{}`)))
		req.Header.Set("Idempotency-Key", "retry-me")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected provider failure to be retried, got %d calls", calls)
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), 0, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	})

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"quantity":1}`)))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := authed(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"quantity":2}`)))
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, replay)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Code)
	}
}
