package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Do(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/users", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 123}`))
	}))
	defer server.Close()

	client := NewClient()
	resp, err := client.Do(context.Background(), &Request{
		Method:  "POST",
		URL:     server.URL + "/api/users",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    `{"name": "alice"}`,
	})

	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	assert.Contains(t, resp.BodyString(), "123")
	assert.Greater(t, resp.Duration, time.Duration(0))
}

func TestClient_Do_RecordsDuration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient()
	resp, err := client.Do(context.Background(), &Request{Method: "GET", URL: server.URL})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, resp.Duration, 20*time.Millisecond)
}

func TestClient_RetriesGetOnNetworkFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			// Drop the connection mid-response.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(WithNetworkRetries(2))
	resp, err := client.Do(context.Background(), &Request{Method: "GET", URL: server.URL})

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryPost(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	defer server.Close()

	client := NewClient(WithNetworkRetries(2))
	_, err := client.Do(context.Background(), &Request{Method: "POST", URL: server.URL, Body: `{}`})

	require.Error(t, err)
	var nerr *NetworkError
	assert.ErrorAs(t, err, &nerr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ConnectionRefused(t *testing.T) {
	client := NewClient(WithNetworkRetries(0))
	_, err := client.Do(context.Background(), &Request{Method: "GET", URL: "http://127.0.0.1:1/nothing"})

	require.Error(t, err)
	var nerr *NetworkError
	assert.ErrorAs(t, err, &nerr)
}

func TestClient_PerRequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(WithNetworkRetries(0))
	_, err := client.Do(context.Background(), &Request{
		Method:  "GET",
		URL:     server.URL,
		Timeout: 30 * time.Millisecond,
	})

	require.Error(t, err)
	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
	assert.True(t, nerr.Timeout())
}

func TestClient_InFlightSurvivesCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"code": 0}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(80 * time.Millisecond)
		cancel()
	}()

	client := NewClient(WithNetworkRetries(0))
	resp, err := client.Do(ctx, &Request{
		Method:  "GET",
		URL:     server.URL,
		Timeout: 2 * time.Second,
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"code": 0}`, resp.BodyString())
}

func TestClient_CancellationStopsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(WithNetworkRetries(2))
	_, err := client.Do(ctx, &Request{Method: "GET", URL: server.URL})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestResponse_Header(t *testing.T) {
	resp := &Response{Headers: map[string]string{"Content-Type": "application/json"}}

	assert.Equal(t, "application/json", resp.Header("Content-Type"))
	assert.Equal(t, "application/json", resp.Header("content-type"))
	assert.Empty(t, resp.Header("X-Missing"))
}
