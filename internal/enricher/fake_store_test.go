package enricher

import (
	"context"
	"sync"

	"github.com/tmarchand/order-enrichment/internal/domain"
)

type fakeStore struct {
	mu    sync.Mutex
	saved map[string]domain.EnrichedOrder
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string]domain.EnrichedOrder)}
}

func (s *fakeStore) FindByOrderID(ctx context.Context, orderID string) (domain.EnrichedOrder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.saved[orderID]
	return order, ok, nil
}

func (s *fakeStore) Save(ctx context.Context, order domain.EnrichedOrder) (domain.EnrichedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.saved[order.OrderID]; ok {
		return domain.EnrichedOrder{}, domain.NewDuplicate(order.OrderID)
	}
	s.saved[order.OrderID] = order
	return order, nil
}
