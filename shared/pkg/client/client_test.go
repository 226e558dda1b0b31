package client

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/psantana5/euclid/pkg/api"
	"github.com/psantana5/euclid/pkg/logging"
	"github.com/psantana5/euclid/pkg/models"
	"github.com/psantana5/euclid/pkg/numeric"
	"github.com/psantana5/euclid/pkg/retry"
	"github.com/psantana5/euclid/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := logging.NewLogger(logging.ERROR, false)
	logger.SetOutput(&bytes.Buffer{})

	router := mux.NewRouter()
	api.NewHandler(store.NewMemoryStore(), logger, api.Options{BatchWorkers: 2}).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
}

func TestClientRoundTrip(t *testing.T) {
	srv := newAPIServer(t)
	c := NewClient(srv.URL + "/")
	ctx := context.Background()

	comp, err := c.Compute(ctx, 14, 15)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), comp.Result)

	got, err := c.Get(ctx, comp.ID)
	require.NoError(t, err)
	assert.Equal(t, comp.ID, got.ID)

	resp, err := c.Batch(ctx, []models.ComputeRequest{{N: 6, M: 9}, {N: 0, M: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, uint64(3), resp.Results[0].Result)

	history, err := c.History(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)

	assert.NoError(t, c.Health(ctx))
}

func TestClientMapsInvalidArgument(t *testing.T) {
	srv := newAPIServer(t)
	c := NewClient(srv.URL)

	_, err := c.Compute(context.Background(), 0, 15)
	assert.ErrorIs(t, err, numeric.ErrInvalidArgument)
}

func TestClientMapsNotFound(t *testing.T) {
	srv := newAPIServer(t)
	c := NewClient(srv.URL)

	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrComputationNotFound)
}

func TestClientRetriesUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total": 7, "coprime": 2}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetRetryConfig(fastRetry())

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.Total)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientDoesNotResendComputeAfterUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": "batch cancelled before completion", "code": "cancelled"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetRetryConfig(fastRetry())

	_, err := c.Compute(context.Background(), 6, 9)
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = c.Batch(context.Background(), []models.ComputeRequest{{N: 6, M: 9}})
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientResendsComputeWhenRateLimited(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": "c-1", "n": 6, "m": 9, "result": 3}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetRetryConfig(fastRetry())

	got, err := c.Compute(context.Background(), 6, 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Result)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientDoesNotResendComputeAfterDroppedConnection(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetRetryConfig(fastRetry())

	_, err := c.Compute(context.Background(), 6, 9)
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid API key", "code": "unauthorized"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetRetryConfig(fastRetry())
	c.SetAPIKey("wrong")

	err := c.Health(context.Background())
	assert.ErrorIs(t, err, ErrServer)
	assert.Contains(t, err.Error(), "invalid API key")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientSendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.Write([]byte(`{"status": "healthy"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetAPIKey("k")
	assert.NoError(t, c.Health(context.Background()))
}
