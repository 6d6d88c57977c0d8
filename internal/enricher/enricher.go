package enricher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tmarchand/order-enrichment/common/metrics"
	"github.com/tmarchand/order-enrichment/internal/domain"
)

// CatalogClient is the subset of C1 the enricher depends on.
type CatalogClient interface {
	GetCustomer(ctx context.Context, customerID string) (domain.Customer, error)
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
}

// OrderStore is the subset of C2 the enricher depends on.
type OrderStore interface {
	FindByOrderID(ctx context.Context, orderID string) (domain.EnrichedOrder, bool, error)
	Save(ctx context.Context, order domain.EnrichedOrder) (domain.EnrichedOrder, error)
}

// Enricher is C5: orchestrates parallel catalog fetches, validates, and
// builds the persisted record. It mutates nothing it did not construct.
type Enricher struct {
	catalog CatalogClient
	store   OrderStore
	metrics *metrics.EnrichmentMetrics
	log     *slog.Logger
}

func New(catalog CatalogClient, store OrderStore, m *metrics.EnrichmentMetrics, log *slog.Logger) *Enricher {
	return &Enricher{catalog: catalog, store: store, metrics: m, log: log}
}

// Enrich runs the full C5 pipeline for a single message: idempotent
// short-circuit, parallel fan-out to the catalog, validation, and save.
func (e *Enricher) Enrich(ctx context.Context, msg domain.OrderMessage) (domain.EnrichedOrder, error) {
	start := time.Now()
	order, err := e.enrich(ctx, msg)
	e.metrics.Duration.Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	e.metrics.ProcessedTotal.WithLabelValues(outcome).Inc()
	return order, err
}

func (e *Enricher) enrich(ctx context.Context, msg domain.OrderMessage) (domain.EnrichedOrder, error) {
	if existing, ok, err := e.store.FindByOrderID(ctx, msg.OrderID); err != nil {
		return domain.EnrichedOrder{}, err
	} else if ok {
		return existing, nil
	}

	customer, products, err := e.fetchAll(ctx, msg)
	if err != nil {
		return domain.EnrichedOrder{}, err
	}

	if err := validate(customer, msg, products); err != nil {
		return domain.EnrichedOrder{}, err
	}

	order, err := build(msg, customer, products)
	if err != nil {
		return domain.EnrichedOrder{}, err
	}

	saved, err := e.store.Save(ctx, order)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) && de.Kind == domain.KindDuplicate {
			existing, ok, findErr := e.store.FindByOrderID(ctx, msg.OrderID)
			if findErr != nil {
				return domain.EnrichedOrder{}, findErr
			}
			if ok {
				return existing, nil
			}
		}
		return domain.EnrichedOrder{}, err
	}

	return saved, nil
}

// fetchAll issues getCustomer concurrently with one getProduct per unique
// productId, joining before validation.
func (e *Enricher) fetchAll(ctx context.Context, msg domain.OrderMessage) (domain.Customer, map[string]domain.Product, error) {
	g, gctx := errgroup.WithContext(ctx)

	var customer domain.Customer
	g.Go(func() error {
		c, err := e.catalog.GetCustomer(gctx, msg.CustomerID)
		if err != nil {
			return err
		}
		customer = c
		return nil
	})

	productIDs := msg.UniqueProductIDs()
	products := make(map[string]domain.Product, len(productIDs))
	var mu sync.Mutex
	for _, id := range productIDs {
		id := id
		g.Go(func() error {
			p, err := e.catalog.GetProduct(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			products[id] = p
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return domain.Customer{}, nil, err
	}
	return customer, products, nil
}

func validate(customer domain.Customer, msg domain.OrderMessage, products map[string]domain.Product) error {
	if customer.Status != domain.CustomerActive {
		return domain.NewInvalidOrder("customer not active")
	}
	for _, p := range msg.Products {
		catalogProduct, ok := products[p.ProductID]
		if !ok {
			return domain.NewInvalidOrder("invalid product(s)")
		}
		if !catalogProduct.IsValid() {
			return domain.NewInvalidOrder("invalid product(s)")
		}
	}
	return nil
}

func build(msg domain.OrderMessage, customer domain.Customer, products map[string]domain.Product) (domain.EnrichedOrder, error) {
	lines := make([]domain.EnrichedProduct, 0, len(msg.Products))
	total := decimal.Zero

	for _, p := range msg.Products {
		cp, ok := products[p.ProductID]
		if !ok {
			return domain.EnrichedOrder{}, domain.NewInvalidOrder("invalid product(s)")
		}
		subtotal := cp.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
		lines = append(lines, domain.EnrichedProduct{
			ProductID:   cp.ProductID,
			Name:        cp.Name,
			Description: cp.Description,
			Price:       cp.Price,
			Quantity:    p.Quantity,
			Subtotal:    subtotal,
		})
		total = total.Add(subtotal)
	}

	return domain.EnrichedOrder{
		OrderID:        msg.OrderID,
		CustomerID:     customer.CustomerID,
		CustomerName:   customer.Name,
		CustomerStatus: customer.Status,
		Products:       lines,
		TotalAmount:    total,
		ProcessedAt:    time.Now().UTC(),
		Status:         domain.StatusProcessed,
	}, nil
}
