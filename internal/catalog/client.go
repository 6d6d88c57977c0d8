package catalog

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tmarchand/order-enrichment/common/metrics"
	"github.com/tmarchand/order-enrichment/internal/domain"
)

// Config holds the tunables enumerated in the external-interfaces section:
// base URL, per-call timeout, breaker window/threshold/cooldown, retry
// attempts/wait.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	BreakerWindow     int
	BreakerThreshold  float64
	BreakerCooldown   time.Duration
	RetryMaxAttempts  int
	RetryInitialWait  time.Duration
	RetryMultiplier   float64
	RetryJitter       float64
	CustomerCacheTTL  time.Duration
	ProductCacheTTL   time.Duration
}

// DefaultConfig returns the defaults named throughout §4.1.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		Timeout:          5 * time.Second,
		BreakerWindow:    20,
		BreakerThreshold: 0.5,
		BreakerCooldown:  10 * time.Second,
		RetryMaxAttempts: 3,
		RetryInitialWait: time.Second,
		RetryMultiplier:  2,
		RetryJitter:      0.2,
		CustomerCacheTTL: 15 * time.Minute,
		ProductCacheTTL:  30 * time.Minute,
	}
}

// Client is C1: fetch customer/product by id behind a cache, a circuit
// breaker, and retry with backoff. Thread-safe; its cache is the one
// acceptable piece of component-internal state per the re-architecture
// guidance against global singletons.
type Client struct {
	http    *httpClient
	cache   *cache
	metrics *metrics.CatalogMetrics
	log     *slog.Logger

	customerBreaker *breaker
	productBreaker  *breaker
	retry           retryConfig

	customerCalls atomic.Int64
	productCalls  atomic.Int64
}

// CallCount reports the number of HTTP attempts made so far for endpoint
// ("customer" or "product"), including retries. Used by tests asserting
// scenario 3's "total attempts observable via C1's internal metric".
func (c *Client) CallCount(endpoint string) int64 {
	switch endpoint {
	case "customer":
		return c.customerCalls.Load()
	case "product":
		return c.productCalls.Load()
	default:
		return 0
	}
}

func NewClient(cfg Config, m *metrics.CatalogMetrics, log *slog.Logger) *Client {
	return &Client{
		http:            newHTTPClient(cfg.BaseURL, cfg.Timeout),
		cache:           newCache(cfg.CustomerCacheTTL, cfg.ProductCacheTTL),
		metrics:         m,
		log:             log,
		customerBreaker: newBreaker(cfg.BreakerWindow, cfg.BreakerThreshold, cfg.BreakerCooldown),
		productBreaker:  newBreaker(cfg.BreakerWindow, cfg.BreakerThreshold, cfg.BreakerCooldown),
		retry: retryConfig{
			maxAttempts: cfg.RetryMaxAttempts,
			initialWait: cfg.RetryInitialWait,
			multiplier:  cfg.RetryMultiplier,
			jitter:      cfg.RetryJitter,
		},
	}
}

// GetCustomer fetches a customer, consulting the cache first, then the
// breaker-and-retry-wrapped HTTP call.
func (c *Client) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	if v, ok := c.cache.getCustomer(customerID); ok {
		c.metrics.CacheResult.WithLabelValues("customer", "hit").Inc()
		return v, nil
	}
	c.metrics.CacheResult.WithLabelValues("customer", "miss").Inc()

	v, err := call(ctx, c.metrics, "customer", c.customerBreaker, c.retry, func(ctx context.Context) (domain.Customer, error) {
		c.customerCalls.Add(1)
		var out domain.Customer
		if err := c.http.get(ctx, "/v1/customers/"+customerID, &out); err != nil {
			if isNotFound(err) {
				return out, domain.NewNotFound("customer", customerID)
			}
			return out, err
		}
		return out, nil
	})
	if err != nil {
		return domain.Customer{}, err
	}

	c.cache.putCustomer(customerID, v)
	return v, nil
}

// GetProduct fetches a product, consulting the cache first, then the
// breaker-and-retry-wrapped HTTP call.
func (c *Client) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if v, ok := c.cache.getProduct(productID); ok {
		c.metrics.CacheResult.WithLabelValues("product", "hit").Inc()
		return v, nil
	}
	c.metrics.CacheResult.WithLabelValues("product", "miss").Inc()

	v, err := call(ctx, c.metrics, "product", c.productBreaker, c.retry, func(ctx context.Context) (domain.Product, error) {
		c.productCalls.Add(1)
		var out domain.Product
		if err := c.http.get(ctx, "/v1/products/"+productID, &out); err != nil {
			if isNotFound(err) {
				return out, domain.NewNotFound("product", productID)
			}
			return out, err
		}
		return out, nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	c.cache.putProduct(productID, v)
	return v, nil
}

// call is the key algorithm from §4.1: breaker.wrap(retry.wrap(http.call)).
// The cache is consulted by the caller before call is ever reached.
func call[T any](ctx context.Context, m *metrics.CatalogMetrics, endpoint string, b *breaker, rc retryConfig, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if !b.allow() {
		m.RecordCall(endpoint, "breaker_open", 0)
		m.BreakerState.WithLabelValues(endpoint).Set(b.stateGauge())
		return zero, errUnavailable(endpoint)
	}

	start := time.Now()
	v, err := withRetry(ctx, rc, op)
	duration := time.Since(start)

	if err != nil {
		if kind, ok := domain.KindOf(err); ok && kind == domain.KindNotFound {
			// NotFound is not a breaker failure: the endpoint answered correctly.
			b.record(true)
			m.RecordCall(endpoint, "not_found", duration)
		} else {
			b.record(false)
			m.RecordCall(endpoint, "error", duration)
		}
		m.BreakerState.WithLabelValues(endpoint).Set(b.stateGauge())
		return zero, err
	}

	b.record(true)
	m.RecordCall(endpoint, "success", duration)
	m.BreakerState.WithLabelValues(endpoint).Set(b.stateGauge())
	return v, nil
}

func isNotFound(err error) bool {
	k, ok := domain.KindOf(err)
	return ok && k == domain.KindNotFound
}
