package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmarchand/order-enrichment/internal/domain"
	"github.com/tmarchand/order-enrichment/internal/retryqueue"
)

type fakeDueSource struct {
	entries []retryqueue.Entry
}

func (f fakeDueSource) Due(ctx context.Context, now time.Time) ([]retryqueue.Entry, error) {
	return f.entries, nil
}

type fakePipeline struct {
	mu        sync.Mutex
	processed []string
	fail      map[string]bool
}

func (p *fakePipeline) Process(ctx context.Context, msg domain.OrderMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, msg.OrderID)
	if p.fail[msg.OrderID] {
		return domain.NewInvalidOrder("still failing")
	}
	return nil
}

func TestProcessDue_DrivesEveryEntryThroughThePipeline(t *testing.T) {
	entries := []retryqueue.Entry{
		{OrderID: "order-1", Message: domain.OrderMessage{OrderID: "order-1"}},
		{OrderID: "order-2", Message: domain.OrderMessage{OrderID: "order-2"}},
	}
	pipeline := &fakePipeline{fail: map[string]bool{}}
	s := New(fakeDueSource{entries: entries}, pipeline, time.Hour, slog.Default())

	s.processDue(context.Background())

	assert.ElementsMatch(t, []string{"order-1", "order-2"}, pipeline.processed)
}

func TestProcessDue_OneFailureDoesNotStopTheRest(t *testing.T) {
	entries := []retryqueue.Entry{
		{OrderID: "order-1", Message: domain.OrderMessage{OrderID: "order-1"}},
		{OrderID: "order-2", Message: domain.OrderMessage{OrderID: "order-2"}},
	}
	pipeline := &fakePipeline{fail: map[string]bool{"order-1": true}}
	s := New(fakeDueSource{entries: entries}, pipeline, time.Hour, slog.Default())

	s.processDue(context.Background())

	require.Len(t, pipeline.processed, 2)
	assert.Contains(t, pipeline.processed, "order-2")
}
