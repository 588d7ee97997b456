package fetcher

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/richardwooding/photo-search/model"
	"github.com/richardwooding/photo-search/version"
)

// RateLimitedTransport wraps an http.RoundTripper with rate limiting and
// stamps the photo-search User-Agent on every request.
type RateLimitedTransport struct {
	transport   http.RoundTripper
	rateLimiter *rate.Limiter
}

// RoundTrip implements the http.RoundTripper interface with rate limiting
func (r *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := r.rateLimiter.Wait(req.Context()); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, model.CreateRateLimitError(err, req.URL.String())
	}

	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", version.UserAgent())
	}
	return r.transport.RoundTrip(req)
}

// NewRateLimitedHTTPClient creates an HTTP client with rate limiting
func NewRateLimitedHTTPClient(requestsPerSecond float64, burstCapacity int, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &RateLimitedTransport{
			transport:   http.DefaultTransport,
			rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burstCapacity),
		},
		Timeout: timeout,
	}
}
