package gitlab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxAttempts = 10
	defaultBackoff     = 250 * time.Millisecond
)

// retryableStatuses are transient upstream conditions worth backing
// off and retrying: GitLab rate limiting and gateway flakiness.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests: true,
	http.StatusBadGateway:      true,
}

// Transport is an http.RoundTripper that layers conditional (ETag)
// caching, rate limiting and retry with exponential backoff over a
// base transport. Reads attach If-None-Match from the cache and a 304
// answer is served from the cached body without re-downloading it.
//
// Failures are classified: transport timeouts surface as TimeoutError
// (not retried here), 429/502 are retried up to the attempt budget and
// then surface as RetryExhaustedError, and any other non-2xx status
// surfaces as RequestFailedError with a description extracted from the
// error body.
type Transport struct {
	base        http.RoundTripper
	cache       *Cache
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
}

// NewTransport wraps base. cache and limiter may be nil to disable
// conditional caching or rate limiting respectively.
func NewTransport(base http.RoundTripper, cache *Cache, limiter *rate.Limiter) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &Transport{
		base:        base,
		cache:       cache,
		limiter:     limiter,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	url := req.URL.String()

	var cached *CacheEntry
	if req.Method == http.MethodGet && t.cache != nil {
		if cached = t.cache.Get(url); cached != nil {
			req = req.Clone(ctx)
			req.Header.Set("If-None-Match", cached.ETag)
		}
	}

	var lastStatus int
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, t.backoff*(1<<(attempt-1))); err != nil {
				return nil, err
			}
		}

		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		attemptReq, err := cloneRequest(ctx, req)
		if err != nil {
			return nil, err
		}

		resp, err := t.base.RoundTrip(attemptReq)
		if err != nil {
			if isTimeout(err) {
				return nil, &TimeoutError{Err: err}
			}

			return nil, err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return t.cacheResponse(req, resp)

		case resp.StatusCode == http.StatusNotModified && cached != nil:
			// The server confirmed the entry is unchanged: hand back
			// the cached body verbatim. The validator is not refreshed.
			drain(resp)

			return cachedResponse(req, cached), nil
		}

		if !retryableStatuses[resp.StatusCode] {
			return nil, failedRequestError(resp)
		}

		lastStatus = resp.StatusCode
		drain(resp)
	}

	return nil, &RetryExhaustedError{Attempts: t.maxAttempts, LastStatus: lastStatus}
}

// cacheResponse stores the body of a successful read when the server
// provided a validator, then hands the response on with its body
// replaced by the buffered copy.
func (t *Transport) cacheResponse(req *http.Request, resp *http.Response) (*http.Response, error) {
	if req.Method != http.MethodGet || t.cache == nil {
		return resp, nil
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	t.cache.Put(req.URL.String(), etag, resp.Header.Get("Content-Type"), body)
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return resp, nil
}

// cachedResponse synthesizes a success response around a cache entry
// so that the layers above parse the cached body exactly as they
// parsed the original.
func cachedResponse(req *http.Request, entry *CacheEntry) *http.Response {
	header := make(http.Header)
	if entry.ContentType != "" {
		header.Set("Content-Type", entry.ContentType)
	}
	header.Set("ETag", entry.ETag)

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: int64(len(entry.Body)),
		Request:       req,
	}
}

func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	clone := req.Clone(ctx)
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("cannot retry request without a rewindable body")
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to rewind request body: %w", err)
	}
	clone.Body = body

	return clone, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
