package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soundjacket/metapub/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	return New(Config{
		RateLimit: 1000,
		RateBurst: 100,
		Retry:     retry.Policy{MaxAttempts: 3, MinInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
		Headers:   map[string]string{"X-API-Key": "secret"},
	})
}

func TestPostJSONRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "value", body["key"])

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := testClient().PostJSON(context.Background(), server.URL, map[string]string{"key": "value"}, nil, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	var out map[string]any
	err := testClient().GetJSON(context.Background(), server.URL, &out)
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRateLimitedIsRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"name":"x"}`))
	}))
	defer server.Close()

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, testClient().GetJSON(context.Background(), server.URL, &out))
	assert.Equal(t, "x", out.Name)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExhaustedRetriesSurface(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var out map[string]any
	err := testClient().GetJSON(context.Background(), server.URL, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
}
