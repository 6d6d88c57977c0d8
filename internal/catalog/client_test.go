package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmarchand/order-enrichment/common/metrics"
	"github.com/tmarchand/order-enrichment/internal/domain"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig(srv.URL)
	cfg.RetryInitialWait = time.Millisecond
	m := metrics.NewCatalogMetricsWith(prometheus.NewRegistry(), "catalog_client_test")
	return NewClient(cfg, m, slog.Default())
}

func TestGetCustomer_Success(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.Customer{CustomerID: "c-1", Name: "John Doe", Status: domain.CustomerActive})
	})

	got, err := client.GetCustomer(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "John Doe", got.Name)
	assert.Equal(t, domain.CustomerActive, got.Status)
}

func TestGetCustomer_NotFound(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetCustomer(context.Background(), "missing")
	require.Error(t, err)
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindNotFound, kind)
}

func TestGetCustomer_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetCustomer(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestGetProduct_RetriesOnUpstreamThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.Product{ProductID: "p-1", Name: "Laptop", Price: decimal.NewFromInt(999), InStock: true})
	})

	got, err := client.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Laptop", got.Name)
	assert.GreaterOrEqual(t, client.CallCount("product"), int64(2))
}

func TestGetCustomer_CachesSuccessfulLookup(t *testing.T) {
	var calls atomic.Int64
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(domain.Customer{CustomerID: "c-1", Name: "John Doe", Status: domain.CustomerActive})
	})

	_, err := client.GetCustomer(context.Background(), "c-1")
	require.NoError(t, err)
	_, err = client.GetCustomer(context.Background(), "c-1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load())
}

func TestBreaker_OpensAfterThresholdExceeded(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client.customerBreaker = newBreaker(4, 0.5, time.Minute)

	for i := 0; i < 4; i++ {
		_, _ = client.GetCustomer(context.Background(), "c-1")
	}

	_, err := client.GetCustomer(context.Background(), "c-1")
	require.Error(t, err)
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindUnavailable, kind)
}
