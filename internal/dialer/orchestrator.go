package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"dialer-engine/internal/attempts"
	"dialer-engine/internal/campaigns"
	"dialer-engine/internal/compliance"
	"dialer-engine/internal/contacts"
	"dialer-engine/internal/pacer"

	"golang.org/x/sync/errgroup"
)

// Orchestrator drives one supply loop per running campaign.
//
// Each loop walks the campaign's contact group once, in order. For every
// contact it asks the compliance gate first; a blocked contact gets a
// terminal blocked row and costs no pacing token. An allowed contact
// waits for a pacing token, then for a slot under the global in-flight
// ceiling, and is then handed to the dial worker. When the pool is
// exhausted and the last in-flight call has resolved, the campaign
// completes automatically.
//
// Faults split two ways: a broken precondition (unresolvable contact
// group) fails the campaign; a retryable store fault pauses it so an
// operator can resume once the dependency is back.
type Orchestrator struct {
	service  *campaigns.Service
	contacts contacts.Store
	store    attempts.Store
	settings compliance.SettingsStore
	gate     *compliance.Gate
	worker   *Worker
	ceiling  pacer.Ceiling
	log      *slog.Logger
	clock    func() time.Time

	// poll is the idle wait between status rechecks while paused or
	// waiting out a pacing gap.
	poll time.Duration

	mu      sync.Mutex
	runners map[string]*runner

	group   *errgroup.Group
	baseCtx context.Context
	stop    context.CancelFunc
}

type runner struct {
	bucket      *pacer.Bucket
	cancel      context.CancelFunc
	outstanding atomic.Int64
}

func NewOrchestrator(service *campaigns.Service, contactStore contacts.Store, store attempts.Store, settings compliance.SettingsStore, gate *compliance.Gate, worker *Worker, ceiling pacer.Ceiling, log *slog.Logger) *Orchestrator {
	baseCtx, stop := context.WithCancel(context.Background())
	group, baseCtx := errgroup.WithContext(baseCtx)
	return &Orchestrator{
		service:  service,
		contacts: contactStore,
		store:    store,
		settings: settings,
		gate:     gate,
		worker:   worker,
		ceiling:  ceiling,
		log:      log,
		clock:    time.Now,
		poll:     250 * time.Millisecond,
		runners:  map[string]*runner{},
		group:    group,
		baseCtx:  baseCtx,
		stop:     stop,
	}
}

// Worker exposes the dial worker for live-state reads (metrics).
func (o *Orchestrator) Worker() *Worker { return o.worker }

// Start transitions the campaign to running and launches its supply loop.
func (o *Orchestrator) Start(ctx context.Context, id string) (campaigns.Campaign, error) {
	c, err := o.service.Start(ctx, id)
	if err != nil {
		return campaigns.Campaign{}, err
	}
	o.launch(c)
	return c, nil
}

// Pause stops new admissions. In-flight calls run to completion; token
// accrual freezes so the resume does not burst.
func (o *Orchestrator) Pause(ctx context.Context, id string) (campaigns.Campaign, error) {
	c, err := o.service.Pause(ctx, id)
	if err != nil {
		return campaigns.Campaign{}, err
	}
	if r := o.runner(id); r != nil {
		r.bucket.Pause(o.clock())
	}
	return c, nil
}

// Resume restarts admissions. If the supply loop is gone, e.g. after a
// process restart, a fresh one is launched.
func (o *Orchestrator) Resume(ctx context.Context, id string) (campaigns.Campaign, error) {
	c, err := o.service.Resume(ctx, id)
	if err != nil {
		return campaigns.Campaign{}, err
	}
	if r := o.runner(id); r != nil {
		r.bucket.Resume(o.clock())
	} else {
		o.launch(c)
	}
	return c, nil
}

// Cancel terminally fails the campaign and stops its supply loop.
// In-flight calls still resolve and are logged.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (campaigns.Campaign, error) {
	c, err := o.service.Fail(ctx, id, "canceled by operator")
	if err != nil {
		return campaigns.Campaign{}, err
	}
	if r := o.runner(id); r != nil {
		r.cancel()
	}
	return c, nil
}

// UpdateRate persists a new pacing rate and applies it to the live run
// when one exists. Without a runner the stored rate takes effect at the
// next launch.
func (o *Orchestrator) UpdateRate(ctx context.Context, id string, ratePerMinute int) (campaigns.Campaign, error) {
	c, err := o.service.UpdateRate(ctx, id, ratePerMinute)
	if err != nil {
		return campaigns.Campaign{}, err
	}
	if r := o.runner(id); r != nil {
		r.bucket.SetRate(ratePerMinute, o.clock())
	}
	return c, nil
}

// Shutdown stops all supply loops and waits for in-flight calls to
// finalize, up to ctx's deadline.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stop()
	done := make(chan struct{})
	go func() {
		_ = o.group.Wait()
		o.worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dialer: shutdown: %w", ctx.Err())
	}
}

func (o *Orchestrator) launch(c campaigns.Campaign) {
	runCtx, cancel := context.WithCancel(o.baseCtx)
	r := &runner{
		bucket: pacer.NewBucket(c.TargetCallsPerMinute, o.clock()),
		cancel: cancel,
	}
	o.mu.Lock()
	o.runners[c.CampaignID] = r
	o.mu.Unlock()

	o.group.Go(func() error {
		defer cancel()
		defer func() {
			o.mu.Lock()
			delete(o.runners, c.CampaignID)
			o.mu.Unlock()
		}()
		o.run(runCtx, r, c)
		return nil
	})
}

func (o *Orchestrator) runner(id string) *runner {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runners[id]
}

func (o *Orchestrator) run(ctx context.Context, r *runner, c campaigns.Campaign) {
	log := o.log.With("campaign_id", c.CampaignID, "campaign", c.Name)
	log.Info("supply loop started", "rate_per_minute", c.TargetCallsPerMinute)

	members, err := o.contacts.GetContactGroupMembers(ctx, c.ContactGroupID)
	if err != nil {
		log.Error("contact group unresolvable", "group_id", c.ContactGroupID, "err", err)
		o.failCampaign(c.CampaignID, fmt.Sprintf("contact group %s unresolvable: %v", c.ContactGroupID, err))
		return
	}

	for _, ct := range members {
		if !o.dispatchOne(ctx, r, c.CampaignID, ct, log) {
			return
		}
	}

	o.drainAndComplete(ctx, r, c.CampaignID, log)
}

// dispatchOne processes one contact to a terminal decision: a blocked
// row, a handed-off dial, or false when the run is over.
func (o *Orchestrator) dispatchOne(ctx context.Context, r *runner, campaignID string, ct contacts.Contact, log *slog.Logger) bool {
	for {
		cur, ok := o.awaitRunning(ctx, campaignID, log)
		if !ok {
			return false
		}

		now := o.clock().UTC()
		s, err := o.settings.Get(ctx)
		if err != nil {
			o.pauseOnFault(ctx, r, campaignID, log, fmt.Errorf("compliance settings unavailable: %w", err))
			continue
		}
		decision, err := o.gate.Evaluate(ctx, ct, cur, s, now)
		if err != nil {
			o.pauseOnFault(ctx, r, campaignID, log, fmt.Errorf("compliance gate: %w", err))
			continue
		}

		if !decision.Allow {
			outcome := attempts.OutcomeComplianceBlocked
			if decision.IsDNC() {
				outcome = attempts.OutcomeDNCBlocked
			}
			_, err := o.store.RecordBlocked(ctx, attempts.AttemptLog{
				CampaignID:      campaignID,
				ContactID:       ct.ContactID,
				PhoneNumber:     ct.PhoneNumber,
				RequestedAt:     now,
				Outcome:         outcome,
				ProviderDetails: decision.Reason,
			})
			if err != nil {
				o.pauseOnFault(ctx, r, campaignID, log, fmt.Errorf("record blocked row: %w", err))
				continue
			}
			log.Info("contact blocked", "contact_id", ct.ContactID, "code", decision.Code, "reason", decision.Reason)
			return true
		}

		if !o.takeToken(ctx, r, campaignID, log) {
			return false
		}
		if err := o.ceiling.Acquire(ctx); err != nil {
			if ctx.Err() != nil {
				return false
			}
			o.pauseOnFault(ctx, r, campaignID, log, fmt.Errorf("dial ceiling: %w", err))
			continue
		}
		r.outstanding.Add(1)
		err = o.worker.Dispatch(ctx, cur, ct, func() { r.outstanding.Add(-1) })
		if err != nil {
			// The attempt row already carries the failure; move on.
			log.Warn("dispatch failed", "contact_id", ct.ContactID, "err", err)
		}
		return true
	}
}

// awaitRunning blocks while the campaign is paused and reports false once
// the run should end (terminal status or canceled context).
func (o *Orchestrator) awaitRunning(ctx context.Context, campaignID string, log *slog.Logger) (campaigns.Campaign, bool) {
	for {
		if ctx.Err() != nil {
			return campaigns.Campaign{}, false
		}
		cur, err := o.service.Get(ctx, campaignID)
		if err != nil {
			log.Error("campaign lookup failed", "err", err)
			if !sleepCtx(ctx, o.poll) {
				return campaigns.Campaign{}, false
			}
			continue
		}
		switch cur.Status {
		case campaigns.StatusRunning:
			return cur, true
		case campaigns.StatusPaused:
			if !sleepCtx(ctx, o.poll) {
				return campaigns.Campaign{}, false
			}
		default:
			return campaigns.Campaign{}, false
		}
	}
}

// takeToken blocks until a pacing token is available.
func (o *Orchestrator) takeToken(ctx context.Context, r *runner, campaignID string, log *slog.Logger) bool {
	for {
		now := o.clock()
		if r.bucket.TryTake(now) {
			return true
		}
		wait := r.bucket.NextAvailable(now)
		if wait <= 0 || wait > o.poll {
			wait = o.poll
		}
		if !sleepCtx(ctx, wait) {
			return false
		}
		// A pause can land mid-wait; go back through the status gate.
		if _, ok := o.awaitRunning(ctx, campaignID, log); !ok {
			return false
		}
	}
}

// drainAndComplete waits for the campaign's in-flight calls to resolve
// after the contact pool is exhausted, then completes the campaign.
func (o *Orchestrator) drainAndComplete(ctx context.Context, r *runner, campaignID string, log *slog.Logger) {
	for r.outstanding.Load() > 0 {
		if !sleepCtx(ctx, o.poll) {
			return
		}
	}
	for {
		cur, err := o.service.Get(ctx, campaignID)
		if err != nil || cur.Status.IsTerminal() {
			return
		}
		if cur.Status == campaigns.StatusRunning {
			break
		}
		// Paused at exhaustion: hold until resumed or canceled.
		if !sleepCtx(ctx, o.poll) {
			return
		}
	}
	if _, err := o.service.Complete(ctx, campaignID); err != nil {
		log.Error("auto-complete failed", "err", err)
		return
	}
	log.Info("campaign completed, contact pool exhausted")
}

// pauseOnFault pauses the campaign on a retryable dependency fault so an
// operator can resume once the dependency recovers.
func (o *Orchestrator) pauseOnFault(ctx context.Context, r *runner, campaignID string, log *slog.Logger, cause error) {
	log.Error("pausing campaign on fault", "err", cause)
	if _, err := o.service.Pause(ctx, campaignID); err != nil {
		log.Error("pause after fault failed", "err", err)
	}
	r.bucket.Pause(o.clock())
}

func (o *Orchestrator) failCampaign(campaignID, reason string) {
	// Runs from a loop whose context may already be canceled; the
	// status write must still happen.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := o.service.Fail(ctx, campaignID, reason); err != nil {
		o.log.Error("fail transition failed", "campaign_id", campaignID, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
