package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/tmarchand/order-enrichment/internal/domain"
	"github.com/tmarchand/order-enrichment/internal/retryqueue"
)

// DueSource is the subset of C4 the scheduler depends on.
type DueSource interface {
	Due(ctx context.Context, now time.Time) ([]retryqueue.Entry, error)
}

// Pipeline is the subset of the lock/enrich/retry pipeline the scheduler
// drives for each due candidate.
type Pipeline interface {
	Process(ctx context.Context, msg domain.OrderMessage) error
}

// Scheduler is C7: a fixed-delay loop that drains due retry entries and
// drives each one through the same pipeline the consumer uses. An error
// on one candidate never aborts the tick; every due entry gets a turn.
type Scheduler struct {
	due      DueSource
	pipeline Pipeline
	interval time.Duration
	logger   *slog.Logger
}

func New(due DueSource, pipeline Pipeline, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{due: due, pipeline: pipeline, interval: interval, logger: logger}
}

// Start runs the scheduling loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("retry scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retry scheduler stopped")
			return
		case <-ticker.C:
			s.processDue(ctx)
		}
	}
}

func (s *Scheduler) processDue(ctx context.Context) {
	entries, err := s.due.Due(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("failed listing due retries", "err", err)
		return
	}

	for _, entry := range entries {
		if err := s.pipeline.Process(ctx, entry.Message); err != nil {
			s.logger.Warn("scheduled retry failed, rescheduled", "orderId", entry.OrderID, "err", err)
			continue
		}
		s.logger.Info("scheduled retry succeeded", "orderId", entry.OrderID)
	}
}
