package enricher

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmarchand/order-enrichment/common/metrics"
	"github.com/tmarchand/order-enrichment/internal/domain"
)

type fakeCatalog struct {
	customers map[string]domain.Customer
	products  map[string]domain.Product
	calls     atomic.Int64
}

func (f *fakeCatalog) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	f.calls.Add(1)
	c, ok := f.customers[id]
	if !ok {
		return domain.Customer{}, domain.NewNotFound("customer", id)
	}
	return c, nil
}

func (f *fakeCatalog) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	f.calls.Add(1)
	p, ok := f.products[id]
	if !ok {
		return domain.Product{}, domain.NewNotFound("product", id)
	}
	return p, nil
}

func newEnricherMetrics() *metrics.EnrichmentMetrics {
	return metrics.NewEnrichmentMetricsWith(prometheus.NewRegistry(), "enricher_test")
}

func TestEnrich_HappyPath(t *testing.T) {
	catalog := &fakeCatalog{
		customers: map[string]domain.Customer{
			"customer-1": {CustomerID: "customer-1", Name: "John Doe", Status: domain.CustomerActive},
		},
		products: map[string]domain.Product{
			"p-1": {ProductID: "p-1", Name: "Laptop", Price: decimal.NewFromInt(999), InStock: true},
		},
	}
	store := newFakeStore()
	e := New(catalog, store, newEnricherMetrics(), slog.Default())

	msg := domain.OrderMessage{
		OrderID:    "order-1",
		CustomerID: "customer-1",
		Products:   []domain.OrderMessageProduct{{ProductID: "p-1", Quantity: 2}},
	}

	order, err := e.Enrich(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(1998)))
	assert.Equal(t, domain.StatusProcessed, order.Status)
	assert.Len(t, store.saved, 1)
}

func TestEnrich_InactiveCustomerFailsValidation(t *testing.T) {
	catalog := &fakeCatalog{
		customers: map[string]domain.Customer{
			"customer-1": {CustomerID: "customer-1", Name: "Jane", Status: domain.CustomerInactive},
		},
		products: map[string]domain.Product{
			"p-1": {ProductID: "p-1", Name: "Laptop", Price: decimal.NewFromInt(999), InStock: true},
		},
	}
	store := newFakeStore()
	e := New(catalog, store, newEnricherMetrics(), slog.Default())

	msg := domain.OrderMessage{
		OrderID:    "order-1",
		CustomerID: "customer-1",
		Products:   []domain.OrderMessageProduct{{ProductID: "p-1", Quantity: 1}},
	}

	_, err := e.Enrich(context.Background(), msg)
	require.Error(t, err)
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindInvalidOrder, kind)
	assert.Empty(t, store.saved)
}

func TestEnrich_OutOfStockProductFailsValidation(t *testing.T) {
	catalog := &fakeCatalog{
		customers: map[string]domain.Customer{
			"customer-1": {CustomerID: "customer-1", Name: "Jane", Status: domain.CustomerActive},
		},
		products: map[string]domain.Product{
			"p-1": {ProductID: "p-1", Name: "Laptop", Price: decimal.NewFromInt(999), InStock: false},
		},
	}
	store := newFakeStore()
	e := New(catalog, store, newEnricherMetrics(), slog.Default())

	msg := domain.OrderMessage{
		OrderID:    "order-1",
		CustomerID: "customer-1",
		Products:   []domain.OrderMessageProduct{{ProductID: "p-1", Quantity: 1}},
	}

	_, err := e.Enrich(context.Background(), msg)
	require.Error(t, err)
	kind, _ := domain.KindOf(err)
	assert.Equal(t, domain.KindInvalidOrder, kind)
}

func TestEnrich_IdempotentShortCircuit(t *testing.T) {
	catalog := &fakeCatalog{
		customers: map[string]domain.Customer{
			"customer-1": {CustomerID: "customer-1", Name: "John Doe", Status: domain.CustomerActive},
		},
		products: map[string]domain.Product{
			"p-1": {ProductID: "p-1", Name: "Laptop", Price: decimal.NewFromInt(999), InStock: true},
		},
	}
	store := newFakeStore()
	e := New(catalog, store, newEnricherMetrics(), slog.Default())

	msg := domain.OrderMessage{
		OrderID:    "order-1",
		CustomerID: "customer-1",
		Products:   []domain.OrderMessageProduct{{ProductID: "p-1", Quantity: 1}},
	}

	_, err := e.Enrich(context.Background(), msg)
	require.NoError(t, err)

	callsAfterFirst := catalog.calls.Load()

	_, err = e.Enrich(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, catalog.calls.Load(), "replay must not re-fetch the catalog")
	assert.Len(t, store.saved, 1)
}
