package pacer

import (
	"context"
	"errors"
	"time"

	"dialer-engine/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const defaultCeilingKey = "dialer:inflight"

// RedisCeiling shares the in-flight cap across engine processes via the
// atomic Lua counter in pkg/utils. Acquire polls; the retry interval keeps
// the wait cheap relative to call durations. The slot TTL covers the
// longest plausible call so a crashed process cannot leak capacity forever.
type RedisCeiling struct {
	rdb   *redis.Client
	key   string
	limit int
	ttl   time.Duration
	retry time.Duration
}

type RedisCeilingConfig struct {
	Key   string
	Limit int

	// SlotTTL defaults to 15m, well past any sane call duration.
	SlotTTL time.Duration
	// RetryInterval defaults to 200ms.
	RetryInterval time.Duration
}

func NewRedisCeiling(rdb *redis.Client, cfg RedisCeilingConfig) (*RedisCeiling, error) {
	if rdb == nil {
		return nil, errors.New("pacer: redis client is nil")
	}
	if cfg.Limit <= 0 {
		return nil, errors.New("pacer: ceiling limit must be > 0")
	}
	if cfg.Key == "" {
		cfg.Key = defaultCeilingKey
	}
	if cfg.SlotTTL <= 0 {
		cfg.SlotTTL = 15 * time.Minute
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}
	return &RedisCeiling{
		rdb:   rdb,
		key:   cfg.Key,
		limit: cfg.Limit,
		ttl:   cfg.SlotTTL,
		retry: cfg.RetryInterval,
	}, nil
}

func (c *RedisCeiling) Acquire(ctx context.Context) error {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		ok, err := utils.AcquireConcurrencyCap(ctx, c.rdb, c.key, c.limit, c.ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		t.Reset(c.retry)
	}
}

func (c *RedisCeiling) Release(ctx context.Context) {
	// Best-effort: the slot TTL is the backstop if this release is lost.
	_ = utils.ReleaseConcurrencyCap(ctx, c.rdb, c.key)
}
