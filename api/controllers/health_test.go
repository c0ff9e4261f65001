package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/community-market-backend/pkg/config"
	"github.com/angelmondragon/community-market-backend/pkg/logger"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "test"}}
}

func TestHealthLive(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthLive(testConfig()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Community-Env") != "test" {
		t.Fatalf("expected env header")
	}
}

func TestHealthReadyAllUp(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "health-test", Output: io.Discard})
	resp := httptest.NewRecorder()
	HealthReady(testConfig(), logg, stubPinger{}, stubPinger{}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestHealthReadyReportsFailingDependency(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "health-test", Output: io.Discard})
	resp := httptest.NewRecorder()
	HealthReady(testConfig(), logg, stubPinger{}, stubPinger{err: errors.New("connection refused")}).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"redis":"down"`) {
		t.Fatalf("expected redis check in details, got %s", resp.Body.String())
	}
}
