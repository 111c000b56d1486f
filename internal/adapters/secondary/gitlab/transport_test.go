package gitlab

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(cache *Cache) *Transport {
	transport := NewTransport(http.DefaultTransport, cache, nil)
	transport.backoff = time.Millisecond

	return transport
}

func get(t *testing.T, transport *Transport, url string) (*http.Response, error) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)

	return transport.RoundTrip(req)
}

func TestTransportRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	resp, err := get(t, newTestTransport(nil), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(4), calls.Load())
}

func TestTransportRetryExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	transport := newTestTransport(nil)
	transport.maxAttempts = 4

	_, err := get(t, transport, server.URL)

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Equal(t, http.StatusTooManyRequests, exhausted.LastStatus)
	assert.Contains(t, exhausted.Error(), "rate limits")
}

func TestTransportBadGatewayIsRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	resp, err := get(t, newTestTransport(nil), server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransportConditionalFetch(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			assert.Empty(t, r.Header.Get("If-None-Match"))
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("ETag", `"v1"`)
			_, _ = w.Write([]byte(`{"value":"original"}`))

			return
		}

		// Second call must carry the validator; answer "unchanged"
		// with no body.
		assert.Equal(t, `"v1"`, r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	cache := NewCache()
	transport := newTestTransport(cache)

	resp, err := get(t, transport, server.URL)
	require.NoError(t, err)
	first, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = get(t, transport, server.URL)
	require.NoError(t, err)
	second, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, first, second)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, int32(2), calls.Load())

	// The validator is not refreshed by a 304.
	entry := cache.Get(server.URL)
	require.NotNil(t, entry)
	assert.Equal(t, `"v1"`, entry.ETag)
}

func TestTransportRequestFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"403 Forbidden"}`))
	}))
	defer server.Close()

	_, err := get(t, newTestTransport(nil), server.URL)

	var failed *RequestFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, http.StatusForbidden, failed.Status)
	assert.Equal(t, "403 Forbidden", failed.Description)
}

func TestTransportTimeout(t *testing.T) {
	transport := newTestTransport(nil)
	transport.base = roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, timeoutError{}
	})

	_, err := get(t, transport, "http://example.invalid/")

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestErrorDescription(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		expected    string
	}{
		{"json message", "application/json", `{"message":"not found"}`, "not found"},
		{"json error field", "application/json", `{"error":"invalid_token"}`, "invalid_token"},
		{"structured message", "application/json", `{"message":{"title":["is too long"]}}`, `{"title":["is too long"]}`},
		{"plain text", "text/plain; charset=utf-8", "boom", "boom"},
		{"malformed json", "application/json", "not json", "not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, errorDescription(tt.contentType, []byte(tt.body)))
		})
	}
}

func TestClassifyContent(t *testing.T) {
	assert.Equal(t, contentJSON, classifyContent("application/json"))
	assert.Equal(t, contentJSON, classifyContent("application/json; charset=utf-8"))
	assert.Equal(t, contentText, classifyContent("text/plain"))
	assert.Equal(t, contentBinary, classifyContent("application/octet-stream"))
	assert.Equal(t, contentBinary, classifyContent(""))
}

func TestTransportContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	transport := newTestTransport(nil)
	transport.backoff = time.Minute

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = transport.RoundTrip(req.WithContext(ctx))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || isTimeout(err))
}
