package pacer

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Ceiling caps the number of in-flight calls across the whole engine.
// The telephony provider and the agent pool are shared resources, so the
// ceiling is one bound regardless of how many campaigns are running.
//
// Acquire blocks until a slot is free or ctx is done; this is the
// backpressure that stops dispatch even when pacing tokens are available.
type Ceiling interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context)
}

// LocalCeiling bounds in-flight calls within one process.
type LocalCeiling struct {
	sem   *semaphore.Weighted
	inUse atomic.Int64
}

func NewLocalCeiling(limit int) (*LocalCeiling, error) {
	if limit <= 0 {
		return nil, errors.New("pacer: ceiling limit must be > 0")
	}
	return &LocalCeiling{sem: semaphore.NewWeighted(int64(limit))}, nil
}

func (c *LocalCeiling) Acquire(ctx context.Context) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.inUse.Add(1)
	return nil
}

func (c *LocalCeiling) Release(ctx context.Context) {
	c.inUse.Add(-1)
	c.sem.Release(1)
}

// InUse reports the currently held slots. Ephemeral, for metrics only.
func (c *LocalCeiling) InUse() int { return int(c.inUse.Load()) }
