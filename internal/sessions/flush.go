package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// flushTimeout bounds one scheduled flush.
const flushTimeout = 30 * time.Second

// Flusher flushes a Cache on a cron schedule.
type Flusher struct {
	cache  *Cache
	cron   *cron.Cron
	logger *slog.Logger
}

// NewFlusher validates schedule, a cron expression or descriptor such as
// "@every 1m".
func NewFlusher(cache *Cache, schedule string, logger *slog.Logger) (*Flusher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schedule = strings.TrimSpace(schedule)
	if _, err := cronParser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid flush schedule %q: %w", schedule, err)
	}
	f := &Flusher{
		cache:  cache,
		cron:   cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger.With("component", "sessions"),
	}
	if _, err := f.cron.AddFunc(schedule, f.run); err != nil {
		return nil, fmt.Errorf("schedule session flush: %w", err)
	}
	return f, nil
}

func (f *Flusher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := f.cache.Flush(ctx); err != nil {
		f.logger.Error("session flush failed", "error", err)
	}
}

// Start begins the schedule in the background.
func (f *Flusher) Start() {
	f.cron.Start()
}

// Stop halts the schedule, waits for a running flush and flushes once
// more so no change is lost on shutdown.
func (f *Flusher) Stop(ctx context.Context) error {
	select {
	case <-f.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return f.cache.Flush(ctx)
}
