// Package gitlab builds the HTTP machinery the GitLab API client runs
// on: a conditional (ETag) response cache and a resilient transport
// doing rate limiting and retry with backoff.
package gitlab

import (
	"fmt"
	"net/http"
	"time"

	glclient "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/time/rate"
)

const (
	// requestTimeout bounds a single HTTP call, not a whole poll cycle.
	requestTimeout = 30 * time.Second

	requestsPerSecond = 10
	requestBurst      = 5

	// CacheSweepPeriod is how long a cache entry may sit unused before
	// the periodic sweep evicts it.
	CacheSweepPeriod = 15 * time.Minute
)

// NewClient creates a GitLab API client whose requests flow through
// the caching transport. The client's own retry layer is disabled so
// the transport holds the only retry budget.
func NewClient(baseURL, token string, cache *Cache) (*glclient.Client, error) {
	httpClient := &http.Client{
		Transport: NewTransport(http.DefaultTransport, cache, rate.NewLimiter(requestsPerSecond, requestBurst)),
		Timeout:   requestTimeout,
	}

	client, err := glclient.NewClient(token,
		glclient.WithBaseURL(baseURL),
		glclient.WithHTTPClient(httpClient),
		glclient.WithoutRetries(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}

	return client, nil
}
