package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Collector refreshes the dashboard snapshot on a fixed interval so the
// dashboard endpoint never fans out store queries per request. Readers
// get the last good snapshot; a failed refresh keeps the previous one.
type Collector struct {
	svc      *Service
	interval time.Duration
	log      *slog.Logger

	latest atomic.Pointer[Dashboard]
}

func NewCollector(svc *Service, interval time.Duration, log *slog.Logger) *Collector {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Collector{svc: svc, interval: interval, log: log}
}

// Run refreshes until ctx is canceled. Call it on its own goroutine.
func (c *Collector) Run(ctx context.Context) {
	c.refresh(ctx)
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.refresh(ctx)
		}
	}
}

func (c *Collector) refresh(ctx context.Context) {
	d, err := c.svc.Dashboard(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("dashboard refresh failed", "err", err)
		}
		return
	}
	c.latest.Store(&d)
}

// Latest returns the newest snapshot, or false before the first
// successful refresh.
func (c *Collector) Latest() (Dashboard, bool) {
	p := c.latest.Load()
	if p == nil {
		return Dashboard{}, false
	}
	return *p, true
}
