// Package fetcher searches the public photos feed and turns the returned feed
// document into photo results.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	ristretto_store "github.com/eko/gocache/store/ristretto/v4"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/richardwooding/photo-search/model"
)

const (
	component    = "photo_fetcher"
	maxFeedBytes = 10 << 20

	// DefaultRequestsPerSecond and DefaultBurstCapacity bound outbound
	// requests to the feed service.
	DefaultRequestsPerSecond = 2.0
	DefaultBurstCapacity     = 5
)

// Config configures a Fetcher. Zero values are replaced by defaults.
type Config struct {
	BaseURL           string        `validate:"required,url"`
	Timeout           time.Duration `validate:"gte=0"`
	ExpireAfter       time.Duration `validate:"gte=0"`
	RequestsPerSecond float64       `validate:"gte=0"`
	BurstCapacity     int           `validate:"gte=0"`
	HTTPClient        *http.Client
	DisableCache      bool
	AllowPrivateIPs   bool

	CircuitBreakerEnabled          *bool
	CircuitBreakerMaxRequests      uint32
	CircuitBreakerInterval         time.Duration `validate:"gte=0"`
	CircuitBreakerTimeout          time.Duration `validate:"gte=0"`
	CircuitBreakerFailureThreshold uint32

	Logger *logrus.Entry
}

// Fetcher performs photo searches against the feed endpoint. Each Fetch is a
// single attempt; successful results may be served from the cache.
type Fetcher struct {
	baseURL        string
	timeout        time.Duration
	client         *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	resultCache    *cache.LoadableCache[[]model.PhotoResult]
	logger         *logrus.Entry
}

func applyDefaults(config *Config) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ExpireAfter == 0 {
		config.ExpireAfter = 5 * time.Minute
	}
	if config.RequestsPerSecond == 0 {
		config.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if config.BurstCapacity == 0 {
		config.BurstCapacity = DefaultBurstCapacity
	}
	if config.CircuitBreakerMaxRequests == 0 {
		config.CircuitBreakerMaxRequests = 1
	}
	if config.CircuitBreakerInterval == 0 {
		config.CircuitBreakerInterval = 60 * time.Second
	}
	if config.CircuitBreakerTimeout == 0 {
		config.CircuitBreakerTimeout = 30 * time.Second
	}
	if config.CircuitBreakerFailureThreshold == 0 {
		config.CircuitBreakerFailureThreshold = 3
	}
	if config.Logger == nil {
		config.Logger = model.DiscardLogger()
	}
}

// NewFetcher validates config and builds a Fetcher.
func NewFetcher(config Config) (*Fetcher, error) {
	applyDefaults(&config)

	if err := model.ValidateStruct(config); err != nil {
		return nil, err
	}
	if err := model.ValidateRemoteURL(config.BaseURL, config.AllowPrivateIPs); err != nil {
		return nil, model.CreateValidationError(err, config.BaseURL)
	}

	if config.HTTPClient == nil {
		config.HTTPClient = NewRateLimitedHTTPClient(config.RequestsPerSecond, config.BurstCapacity, config.Timeout)
	}

	f := &Fetcher{
		baseURL: config.BaseURL,
		timeout: config.Timeout,
		client:  config.HTTPClient,
		logger:  config.Logger.WithField("component", component),
	}

	if config.CircuitBreakerEnabled == nil || *config.CircuitBreakerEnabled {
		threshold := config.CircuitBreakerFailureThreshold
		f.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        fmt.Sprintf("feed-%s", config.BaseURL),
			MaxRequests: config.CircuitBreakerMaxRequests,
			Interval:    config.CircuitBreakerInterval,
			Timeout:     config.CircuitBreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: countsAsSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				f.logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("circuit breaker state changed")
			},
		})
	}

	if !config.DisableCache {
		resultCache, err := newResultCache(f.load, config.ExpireAfter)
		if err != nil {
			return nil, model.NewFeedErrorWithCause(model.ErrorTypeCache, "failed to create result cache", err).
				WithOperation("create_fetcher").
				WithComponent(component)
		}
		f.resultCache = resultCache
	}

	return f, nil
}

func newResultCache(load func(context.Context, string) ([]model.PhotoResult, error), ttl time.Duration) (*cache.LoadableCache[[]model.PhotoResult], error) {
	ristrettoCache, err := ristretto.NewCache(&ristretto.Config[string, []model.PhotoResult]{
		NumCounters:        10_000,
		MaxCost:            1_000,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}

	loadFunction := func(ctx context.Context, key any) ([]model.PhotoResult, []store.Option, error) {
		term, ok := key.(string)
		if !ok {
			return nil, nil, errors.New("invalid key type")
		}
		photos, err := load(ctx, term)
		if err != nil {
			return nil, nil, err
		}
		return photos, []store.Option{store.WithExpiration(ttl), store.WithCost(1)}, nil
	}

	return cache.NewLoadable[[]model.PhotoResult](
		loadFunction,
		cache.New[[]model.PhotoResult](ristretto_store.NewRistretto(ristrettoCache)),
	), nil
}

// countsAsSuccess reports outcomes the breaker does not count as failures:
// cancellations and 4xx responses.
func countsAsSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		model.IsErrorType(err, model.ErrorTypeCanceled) ||
		model.IsErrorType(err, model.ErrorTypeHTTPClientError)
}

// Fetch searches the feed for term. The term is used as given; callers
// normalise it. Failures are returned as *model.FeedError.
func (f *Fetcher) Fetch(ctx context.Context, term string) ([]model.PhotoResult, error) {
	if f.resultCache != nil {
		return f.resultCache.Get(ctx, term)
	}
	return f.load(ctx, term)
}

func (f *Fetcher) load(ctx context.Context, term string) ([]model.PhotoResult, error) {
	if f.circuitBreaker == nil {
		return f.fetch(ctx, term)
	}

	result, err := f.circuitBreaker.Execute(func() (interface{}, error) {
		return f.fetch(ctx, term)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, model.CreateCircuitBreakerError(err, SearchURL(f.baseURL, term), f.circuitBreaker.State().String()).
			WithTerm(term)
	}
	if err != nil {
		return nil, err
	}
	photos, ok := result.([]model.PhotoResult)
	if !ok {
		return nil, model.NewFeedError(model.ErrorTypeInternal, "unexpected result type from circuit breaker").
			WithOperation("fetch_feed").
			WithComponent(component)
	}
	return photos, nil
}

func (f *Fetcher) fetch(ctx context.Context, term string) ([]model.PhotoResult, error) {
	feedURL := SearchURL(f.baseURL, term)
	logger := f.logger.WithFields(logrus.Fields{"term": term, "url": feedURL})

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, model.CreateValidationError(fmt.Errorf("%w: %v", model.ErrInvalidURL, err), feedURL).WithTerm(term)
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, */*;q=0.5")

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		var fe *model.FeedError
		if errors.As(err, &fe) {
			return nil, fe.WithTerm(term)
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, model.CreateNetworkError(err, feedURL).WithTerm(term)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, model.CreateHTTPError(resp, feedURL).WithTerm(term)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, model.CreateNetworkError(err, feedURL).WithTerm(term)
	}

	photos, err := ParseFeed(body, feedURL)
	if err != nil {
		var fe *model.FeedError
		if errors.As(err, &fe) {
			fe.WithTerm(term)
		}
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"photos":   len(photos),
		"format":   DetectFormat(body),
		"duration": time.Since(started).String(),
	}).Debug("fetched photo feed")

	return photos, nil
}

// Close stops the cache's background setter.
func (f *Fetcher) Close() {
	if f.resultCache != nil {
		f.resultCache.Close()
	}
}
