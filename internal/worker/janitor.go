package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"otpmarket/internal/registry"
)

// Janitor periodically evicts registry entries whose numbers expired at the
// vendor. It touches only the in-memory registry; order records are left to
// the coordinator.
type Janitor struct {
	active   *registry.Active
	interval time.Duration
	logger   *zap.SugaredLogger
}

func NewJanitor(active *registry.Active, interval time.Duration, logger *zap.SugaredLogger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		active:   active,
		interval: interval,
		logger:   logger,
	}
}

func (j *Janitor) Start(ctx context.Context) {
	j.logger.Infow("starting registry janitor", "interval", j.interval)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Infow("registry janitor stopped")
			return
		case <-ticker.C:
			if n := j.active.Evict(time.Now()); n > 0 {
				j.logger.Infow("evicted expired registry entries", "count", n, "remaining", j.active.Len())
			}
		}
	}
}
