package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/internal/ledger"
	internalpayments "github.com/angelmondragon/community-market-backend/internal/payments"
	pkgAuth "github.com/angelmondragon/community-market-backend/pkg/auth"
	"github.com/angelmondragon/community-market-backend/pkg/config"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
	"github.com/angelmondragon/community-market-backend/pkg/logger"
	"github.com/angelmondragon/community-market-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryRedis struct {
	mu     sync.Mutex
	data   map[string]string
	counts map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryRedis) Ping(context.Context) error { return nil }

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "cm:idempotency:" + scope + ":" + id
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

type stubIntents struct{}

func (stubIntents) CreateIntent(_ context.Context, input internalpayments.CreateIntentInput) (*internalpayments.IntentResult, error) {
	return &internalpayments.IntentResult{
		TransactionID: uuid.New(),
		Provider:      enums.PaymentProviderMock,
		AmountCents:   input.AmountCents,
		PointsAmount:  input.PointsAmount,
	}, nil
}

type stubLedger struct{}

func (stubLedger) Balance(context.Context, uuid.UUID) (int64, error) { return 75, nil }

func (stubLedger) History(context.Context, uuid.UUID, pagination.Params) (*ledger.HistoryPage, error) {
	return &ledger.HistoryPage{}, nil
}

func testRouterConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "community-market", ExpirationMinutes: 60},
		Payments: config.PaymentsConfig{
			IntentRateLimit:  1,
			IntentRateWindow: time.Minute,
		},
		Eventing: config.EventingConfig{RequestIdempotencyTTL: time.Hour},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testRouterConfig()
	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	return NewRouter(cfg, logg, stubPinger{}, newMemoryRedis(), nil, Services{Ledger: stubLedger{}, Intents: stubIntents{}}), cfg
}

func bearer(t *testing.T, cfg *config.Config) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New()})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthRoutesArePublic(t *testing.T) {
	router, _ := newTestRouter(t)
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/points/balance", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthenticatedBalance(t *testing.T) {
	router, cfg := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/points/balance", nil)
	req.Header.Set("Authorization", bearer(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"balance":75`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestPaymentIntentWithoutIdempotencyKey(t *testing.T) {
	router, cfg := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intents", strings.NewReader(`{"amountCents":1000,"pointsAmount":1000}`))
	req.Header.Set("Authorization", bearer(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"provider":"mock"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestPaymentIntentIsRateLimited(t *testing.T) {
	router, cfg := newTestRouter(t)
	token := bearer(t, cfg)
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intents", strings.NewReader(`{"amountCents":1000,"pointsAmount":1000}`))
		req.Header.Set("Authorization", token)
		req.Header.Set("Idempotency-Key", uuid.NewString())
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	if codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected second intent to be rate limited, got %v", codes)
	}
}

func TestStripeWebhookBypassesAuth(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{}`)))
	if resp.Code == http.StatusUnauthorized {
		t.Fatalf("webhook route must not require a bearer token")
	}
}
