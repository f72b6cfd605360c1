package telephony

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// SimProvider completes calls in-process without a carrier. It is the
// default provider for local runs and is what the engine tests dial
// against.
type SimProvider struct {
	// Latency is how long a simulated call takes before its terminal
	// status fires. Zero means the result is delivered almost
	// immediately (still on a separate goroutine).
	Latency time.Duration

	// Script, when set, decides the outcome of each call. When nil a
	// weighted random outcome is used.
	Script func(req PlaceCallRequest) CallResult

	mu     sync.Mutex
	placed int
	rng    *rand.Rand
}

func NewSimProvider(latency time.Duration) *SimProvider {
	return &SimProvider{
		Latency: latency,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *SimProvider) Name() string { return "sim" }

func (p *SimProvider) HealthCheck(ctx context.Context) error { return nil }

// Placed reports how many calls the simulator has accepted.
func (p *SimProvider) Placed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.placed
}

func (p *SimProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) error {
	if req.OnResult == nil {
		return fmt.Errorf("place call %s: nil result callback", req.CallID)
	}
	if req.To == "" {
		return fmt.Errorf("place call %s: empty destination", req.CallID)
	}

	p.mu.Lock()
	p.placed++
	p.mu.Unlock()

	go func() {
		if p.Latency > 0 {
			select {
			case <-time.After(p.Latency):
			case <-ctx.Done():
				req.OnResult(CallResult{Status: CallStatusCanceled, ProviderDetails: ctx.Err().Error()})
				return
			}
		}
		req.OnResult(p.outcome(req))
	}()
	return nil
}

func (p *SimProvider) outcome(req PlaceCallRequest) CallResult {
	if p.Script != nil {
		return p.Script(req)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	roll := p.rng.Float64()
	switch {
	case roll < 0.55:
		return CallResult{Status: CallStatusCompleted, DurationSeconds: 30 + p.rng.Intn(240)}
	case roll < 0.75:
		return CallResult{Status: CallStatusNoAnswer}
	case roll < 0.88:
		return CallResult{Status: CallStatusBusy}
	default:
		return CallResult{Status: CallStatusFailed, ProviderDetails: "sim: carrier rejected"}
	}
}
