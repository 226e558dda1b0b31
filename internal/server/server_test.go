package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/psantana5/euclid/internal/config"
	"github.com/psantana5/euclid/pkg/logging"
	"github.com/psantana5/euclid/pkg/models"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)

	cfg.Server.Address = "127.0.0.1:0"
	cfg.Server.MetricsAddress = ""
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Store.Type = "memory"
	cfg.Batch.Workers = 2
	return cfg
}

func quietLogger() *logging.Logger {
	l := logging.NewLogger(logging.ERROR, false)
	l.SetOutput(&bytes.Buffer{})
	return l
}

func request(h http.Handler, method, target, body, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterComputes(t *testing.T) {
	s, err := New(testConfig(t), quietLogger())
	require.NoError(t, err)
	defer s.shutdown.Shutdown()

	router := s.Router()
	rr := request(router, "POST", "/gcd", `{"n": 14, "m": 15}`, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var c models.Computation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))
	assert.Equal(t, uint64(1), c.Result)

	rec := httptest.NewRecorder()
	s.collector.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `euclid_computations_total{outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), `euclid_http_requests_total{code="201",method="POST",route="/gcd"} 1`)
}

func TestRouterRequiresAPIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.APIKey = "s3cret"

	s, err := New(cfg, quietLogger())
	require.NoError(t, err)
	defer s.shutdown.Shutdown()

	router := s.Router()
	assert.Equal(t, http.StatusUnauthorized, request(router, "GET", "/gcd?n=6&m=9", "", "").Code)
	assert.Equal(t, http.StatusOK, request(router, "GET", "/gcd?n=6&m=9", "", "s3cret").Code)
	assert.Equal(t, http.StatusOK, request(router, "GET", "/health", "", "").Code)
}

func TestRouterRateLimits(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.RPS = 0.001
	cfg.RateLimit.Burst = 2

	s, err := New(cfg, quietLogger())
	require.NoError(t, err)
	defer s.shutdown.Shutdown()

	router := s.Router()
	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, request(router, "GET", "/gcd?n=6&m=9", "", "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRouterRateLimitsIgnoreForwardedForFromClients(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.RPS = 0.001
	cfg.RateLimit.Burst = 1

	s, err := New(cfg, quietLogger())
	require.NoError(t, err)
	defer s.shutdown.Shutdown()

	router := s.Router()
	codes := []int{}
	for _, xff := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest("GET", "/gcd?n=6&m=9", nil)
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestNewRejectsBadTrustedProxy(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.TrustedProxies = []string{"proxy.internal"}

	_, err := New(cfg, quietLogger())
	assert.Error(t, err)
}

func TestNewRejectsBadStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Type = "mongodb"

	_, err := New(cfg, quietLogger())
	assert.Error(t, err)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s, err := New(testConfig(t), quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNewRejectsUnreadableCertificate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.TLSCert = "/nonexistent/euclid.crt"
	cfg.Server.TLSKey = "/nonexistent/euclid.key"

	_, err := New(cfg, quietLogger())
	assert.Error(t, err)
}
