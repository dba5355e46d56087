package ratelimit

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func guardedClient(transport *Transport) *http.Client {
	return &http.Client{Transport: transport, Timeout: 5 * time.Second}
}

func TestTransport_EnforcesBudget(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bucket, _ := newTestBucket(t, 2)
	client := guardedClient(NewTransport(TransportOptions{
		Bucket:   bucket,
		Resource: "geocode",
		Logger:   discardLogger(),
	}))

	for range 2 {
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	_, err := client.Get(srv.URL)
	require.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, int64(2), hits.Load())
}

func TestTransport_FailsOpenWhenRedisIsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bucket, mr := newTestBucket(t, 1)
	mr.Close()

	client := guardedClient(NewTransport(TransportOptions{
		Bucket:   bucket,
		Resource: "geocode",
		Logger:   discardLogger(),
	}))

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
}

func TestTransport_BreakerTripsOnServerErrors(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	breaker := NewBreaker(BreakerOptions{Threshold: 2, Cooldown: time.Minute})
	client := guardedClient(NewTransport(TransportOptions{
		Breaker: breaker,
		Logger:  discardLogger(),
	}))

	for range 2 {
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	// Circuit is open; the upstream must not see a third call.
	_, err := client.Get(srv.URL)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int64(2), hits.Load())
}

func TestTransport_ClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	breaker := NewBreaker(BreakerOptions{Threshold: 1, Cooldown: time.Minute})
	client := guardedClient(NewTransport(TransportOptions{
		Breaker: breaker,
		Logger:  discardLogger(),
	}))

	for range 3 {
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	assert.False(t, breaker.Tripped())
}
