package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eternisai/agent-console/internal/logger"
)

// janitorTimeout bounds each sweep so a slow database cannot pile up
// overlapping runs.
const janitorTimeout = 30 * time.Second

// Janitor periodically flips stale active conversations to abandoned.
type Janitor struct {
	store        *Store
	abandonAfter time.Duration
	schedule     string
	cron         *cron.Cron
	logger       *logger.Logger
}

// NewJanitor creates a janitor sweeping on the given cron schedule
// (e.g. "@every 10m").
func NewJanitor(store *Store, abandonAfter time.Duration, schedule string, log *logger.Logger) *Janitor {
	return &Janitor{
		store:        store,
		abandonAfter: abandonAfter,
		schedule:     schedule,
		cron:         cron.New(),
		logger:       log.WithComponent("conversation-janitor"),
	}
}

// Start begins sweeping. Call Stop for a clean shutdown.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.sweep); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.schedule, err)
	}

	j.cron.Start()
	j.logger.Info("janitor started",
		slog.String("schedule", j.schedule),
		slog.Duration("abandon_after", j.abandonAfter))

	return nil
}

// Stop halts sweeping and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("janitor stopped")
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), janitorTimeout)
	defer cancel()

	n, err := j.store.markStale(ctx, j.abandonAfter)
	if err != nil {
		j.logger.Error("janitor sweep failed", slog.String("error", err.Error()))
		return
	}

	if n > 0 {
		j.logger.Info("stale conversations abandoned", slog.Int64("count", n))
	}
}
