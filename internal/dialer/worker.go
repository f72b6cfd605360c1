package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dialer-engine/internal/agents"
	"dialer-engine/internal/attempts"
	"dialer-engine/internal/campaigns"
	"dialer-engine/internal/contacts"
	"dialer-engine/internal/pacer"
	"dialer-engine/internal/telephony"
)

// Worker executes admitted dials. The orchestrator decides WHO may be
// dialed and WHEN (compliance gate, pacing token, ceiling slot); the
// worker handles the mechanics of one call: caller ID rotation, agent
// assignment, the attempt log row, the provider handoff, and the
// finalize when the provider reports back.
//
// Dispatch takes ownership of one already-acquired ceiling slot. The
// slot is released exactly once, either on a synchronous failure inside
// Dispatch or when the provider's result callback finalizes the attempt.
type Worker struct {
	store    attempts.Store
	provider telephony.Provider
	registry agents.Registry
	assigner agents.Assigner
	ceiling  pacer.Ceiling
	log      *slog.Logger
	clock    func() time.Time

	mu        sync.Mutex
	inFlight  map[string]flight // attempt id -> live call
	callerIdx map[string]int    // campaign id -> next caller ID index
	wg        sync.WaitGroup
}

type flight struct {
	campaignID string
	agentID    string
}

func NewWorker(store attempts.Store, provider telephony.Provider, registry agents.Registry, assigner agents.Assigner, ceiling pacer.Ceiling, log *slog.Logger) *Worker {
	return &Worker{
		store:     store,
		provider:  provider,
		registry:  registry,
		assigner:  assigner,
		ceiling:   ceiling,
		log:       log,
		clock:     time.Now,
		inFlight:  map[string]flight{},
		callerIdx: map[string]int{},
	}
}

// Dispatch places one call for ct on behalf of cmp. done is invoked
// exactly once when the attempt reaches a terminal outcome, including
// every failure path after this call; the caller uses it to track
// outstanding work.
func (w *Worker) Dispatch(ctx context.Context, cmp campaigns.Campaign, ct contacts.Contact, done func()) error {
	now := w.clock().UTC()

	row, err := w.store.Begin(ctx, attempts.AttemptLog{
		CampaignID:  cmp.CampaignID,
		ContactID:   ct.ContactID,
		PhoneNumber: ct.PhoneNumber,
		CallerID:    w.nextCallerID(cmp),
		AgentID:     w.pickAgent(ctx, cmp),
		RequestedAt: now,
		Outcome:     attempts.OutcomeQueued,
	})
	if err != nil {
		w.ceiling.Release(ctx)
		done()
		return fmt.Errorf("dialer: begin attempt: %w", err)
	}

	if err := w.store.MarkDialing(ctx, row.ID, w.clock().UTC()); err != nil {
		// The row stays queued; finalize it as failed so it cannot
		// wedge the active count.
		w.finalize(ctx, row.ID, attempts.OutcomeFailed, 0, "mark dialing: "+err.Error())
		w.ceiling.Release(ctx)
		done()
		return fmt.Errorf("dialer: mark dialing: %w", err)
	}

	w.track(row)
	w.wg.Add(1)

	// The callback runs on the provider's goroutine, possibly after the
	// dispatch context is gone. Finalizing must still succeed then.
	resultCtx := context.WithoutCancel(ctx)
	err = w.provider.PlaceCall(ctx, telephony.PlaceCallRequest{
		CallID: row.ID,
		From:   row.CallerID,
		To:     row.PhoneNumber,
		OnResult: func(res telephony.CallResult) {
			defer w.wg.Done()
			defer done()
			defer w.ceiling.Release(resultCtx)
			w.untrack(row.ID)
			w.finalize(resultCtx, row.ID, outcomeFor(res.Status), res.DurationSeconds, res.ProviderDetails)
		},
	})
	if err != nil {
		w.untrack(row.ID)
		w.finalize(ctx, row.ID, attempts.OutcomeFailed, 0, err.Error())
		w.ceiling.Release(ctx)
		w.wg.Done()
		done()
		return fmt.Errorf("dialer: place call: %w", err)
	}
	return nil
}

// Wait blocks until every placed call has been finalized.
func (w *Worker) Wait() { w.wg.Wait() }

// InFlight counts calls placed but not yet finalized.
func (w *Worker) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inFlight)
}

// ConnectedAgents counts distinct agents currently on a call.
func (w *Worker) ConnectedAgents() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	seen := map[string]struct{}{}
	for _, f := range w.inFlight {
		if f.agentID != "" {
			seen[f.agentID] = struct{}{}
		}
	}
	return len(seen)
}

// nextCallerID rotates through the campaign's caller ID pool.
func (w *Worker) nextCallerID(cmp campaigns.Campaign) string {
	if len(cmp.CallerIDs) == 0 {
		return ""
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.callerIdx[cmp.CampaignID]
	w.callerIdx[cmp.CampaignID] = i + 1
	return cmp.CallerIDs[i%len(cmp.CallerIDs)]
}

// pickAgent resolves the agent for one call. A pinned campaign always
// uses its configured agent; auto-assign picks from the available pool.
// An empty pool is not an error: the call proceeds unassigned and the
// attempt row records no agent.
func (w *Worker) pickAgent(ctx context.Context, cmp campaigns.Campaign) string {
	if !cmp.AutoAssign() {
		return cmp.AssignedAgentID
	}
	if w.registry == nil || w.assigner == nil {
		return ""
	}
	pool, err := w.registry.ListAvailableAgents(ctx)
	if err != nil {
		w.log.Warn("agent pool lookup failed, dialing unassigned", "campaign_id", cmp.CampaignID, "err", err)
		return ""
	}
	agentID, err := w.assigner.Assign(pool)
	if err != nil {
		return ""
	}
	return agentID
}

func (w *Worker) track(row attempts.AttemptLog) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight[row.ID] = flight{campaignID: row.CampaignID, agentID: row.AgentID}
}

func (w *Worker) untrack(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, id)
}

func (w *Worker) finalize(ctx context.Context, id string, outcome attempts.Outcome, durationSeconds int, details string) {
	if err := w.store.Finalize(ctx, id, outcome, durationSeconds, details, w.clock().UTC()); err != nil {
		w.log.Error("finalize attempt failed", "attempt_id", id, "outcome", outcome, "err", err)
	}
}

func outcomeFor(s telephony.CallStatus) attempts.Outcome {
	switch s {
	case telephony.CallStatusAnswered:
		return attempts.OutcomeAnswered
	case telephony.CallStatusCompleted:
		return attempts.OutcomeCompleted
	case telephony.CallStatusBusy:
		return attempts.OutcomeBusy
	case telephony.CallStatusNoAnswer:
		return attempts.OutcomeNoAnswer
	case telephony.CallStatusCanceled:
		return attempts.OutcomeCanceled
	default:
		return attempts.OutcomeFailed
	}
}
