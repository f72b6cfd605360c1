package pacer

import (
	"sync"
	"time"
)

// Bucket is a per-campaign token bucket releasing dial admissions at the
// campaign's target rate.
//
// Refill is continuous pro-rata (rate/60 tokens per second), never a
// minute-boundary burst. Capacity equals the per-minute rate and the
// bucket starts empty, so a freshly started campaign ramps up instead of
// firing its whole first minute at once.
//
// Pausing freezes accrual: tokens do not accumulate while paused, so a
// resume never produces a catch-up burst.
//
// A token is consumed at dispatch and never returned; tokens bound rate,
// not concurrency. The in-flight ceiling is a separate concern (Ceiling).
type Bucket struct {
	mu         sync.Mutex
	ratePerMin int
	tokens     float64
	last       time.Time
	paused     bool
}

func NewBucket(ratePerMinute int, now time.Time) *Bucket {
	if ratePerMinute < 1 {
		ratePerMinute = 1
	}
	return &Bucket{ratePerMin: ratePerMinute, last: now}
}

// TryTake consumes one token if available, refilling first.
func (b *Bucket) TryTake(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	if b.paused || b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// NextAvailable returns how long until a token will be available, assuming
// no pause. Zero means a token is ready now.
func (b *Bucket) NextAvailable(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	if b.tokens >= 1 {
		return 0
	}
	missing := 1 - b.tokens
	perToken := time.Minute / time.Duration(b.ratePerMin)
	return time.Duration(missing * float64(perToken))
}

// Pause freezes token accrual.
func (b *Bucket) Pause(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	b.paused = true
}

// Resume restarts accrual from now; paused time earns nothing.
func (b *Bucket) Resume(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = false
	b.last = now
}

// SetRate changes the refill rate, e.g. after a campaign edit.
func (b *Bucket) SetRate(ratePerMinute int, now time.Time) {
	if ratePerMinute < 1 {
		ratePerMinute = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	b.ratePerMin = ratePerMinute
	if b.tokens > float64(b.ratePerMin) {
		b.tokens = float64(b.ratePerMin)
	}
}

// refill advances the bucket to now. Callers hold b.mu.
func (b *Bucket) refill(now time.Time) {
	if b.paused {
		b.last = now
		return
	}
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	b.last = now
	b.tokens += elapsed.Seconds() * float64(b.ratePerMin) / 60
	if cap := float64(b.ratePerMin); b.tokens > cap {
		b.tokens = cap
	}
}
