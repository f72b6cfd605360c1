package dialer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dialer-engine/internal/agents"
	"dialer-engine/internal/attempts"
	"dialer-engine/internal/campaigns"
	"dialer-engine/internal/compliance"
	"dialer-engine/internal/contacts"
	"dialer-engine/internal/pacer"
	"dialer-engine/internal/telephony"
)

// testRate keeps the token bucket from throttling tests. Live campaigns
// are capped at 60 but the bucket itself takes any rate, so fixtures
// write campaigns straight into the repository.
const testRate = 60000

type fixture struct {
	repo       *campaigns.MemoryRepo
	svc        *campaigns.Service
	contacts   *contacts.MemoryStore
	store      *attempts.MemoryStore
	settings   *compliance.MemorySettings
	violations *compliance.MemoryViolations
	worker     *Worker
	orch       *Orchestrator
}

func newFixture(t *testing.T, provider telephony.Provider, ceiling pacer.Ceiling) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		repo:       campaigns.NewMemoryRepo(),
		contacts:   contacts.NewMemoryStore(),
		store:      attempts.NewMemoryStore(),
		settings:   compliance.NewMemorySettings(),
		violations: compliance.NewMemoryViolations(),
	}
	f.svc = campaigns.NewService(f.repo, nil)

	// Permissive window so tests pass at any time of day.
	s := compliance.DefaultSettings()
	s.CallingHoursStart = "00:00"
	s.CallingHoursEnd = "23:59"
	s.DailyAttemptsLimit = 0
	s.WeeklyAttemptsLimit = 0
	s.TotalAttemptsLimit = 0
	if _, err := f.settings.Put(context.Background(), s); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	gate := compliance.NewGate(f.contacts, f.store, f.violations)

	if ceiling == nil {
		c, err := pacer.NewLocalCeiling(100)
		if err != nil {
			t.Fatalf("ceiling: %v", err)
		}
		ceiling = c
	}
	registry := agents.NewMemoryRegistry("agent-1", "agent-2")
	f.worker = NewWorker(f.store, provider, registry, agents.NewLeastRecentlyAssigned(), ceiling, log)
	f.orch = NewOrchestrator(f.svc, f.contacts, f.store, f.settings, gate, f.worker, ceiling, log)
	f.orch.poll = 5 * time.Millisecond

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.orch.Shutdown(ctx)
	})
	return f
}

func (f *fixture) seedCampaign(t *testing.T, id, groupID string, members []contacts.Contact) campaigns.Campaign {
	t.Helper()
	f.contacts.SetGroup(groupID, members)
	now := time.Now().UTC()
	c := campaigns.Campaign{
		CampaignID:           id,
		Name:                 "test " + id,
		Status:               campaigns.StatusQueued,
		ContactGroupID:       groupID,
		CallerIDs:            []string{"+15550009999"},
		TargetCallsPerMinute: testRate,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := f.repo.Create(context.Background(), c); err != nil {
		t.Fatalf("seed campaign: %v", err)
	}
	return c
}

func (f *fixture) waitStatus(t *testing.T, id string, want campaigns.CampaignStatus, timeout time.Duration) campaigns.Campaign {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c, err := f.svc.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get campaign: %v", err)
		}
		if c.Status == want {
			return c
		}
		time.Sleep(5 * time.Millisecond)
	}
	c, _ := f.svc.Get(context.Background(), id)
	t.Fatalf("campaign %s status = %s, want %s within %s", id, c.Status, want, timeout)
	return campaigns.Campaign{}
}

func scriptedSim(status telephony.CallStatus, duration int) *telephony.SimProvider {
	p := telephony.NewSimProvider(0)
	p.Script = func(telephony.PlaceCallRequest) telephony.CallResult {
		return telephony.CallResult{Status: status, DurationSeconds: duration}
	}
	return p
}

func TestRunSkipsDNCAndCompletes(t *testing.T) {
	f := newFixture(t, scriptedSim(telephony.CallStatusCompleted, 30), nil)
	members := []contacts.Contact{
		{ContactID: "ct-1", PhoneNumber: "+15550000001", TimeZone: "UTC"},
		{ContactID: "ct-2", PhoneNumber: "+15550000002", TimeZone: "UTC"},
		{ContactID: "ct-3", PhoneNumber: "+15550000003", TimeZone: "UTC"},
	}
	f.seedCampaign(t, "c1", "g1", members)
	f.contacts.AddToDNC("+15550000002")

	if _, err := f.orch.Start(context.Background(), "c1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.waitStatus(t, "c1", campaigns.StatusCompleted, 2*time.Second)

	rows, total, err := f.store.ListByCampaign(context.Background(), "c1", attempts.LogQuery{})
	if err != nil {
		t.Fatalf("ListByCampaign: %v", err)
	}
	if total != 3 {
		t.Fatalf("total rows = %d, want 3", total)
	}
	byOutcome := map[attempts.Outcome]int{}
	for _, r := range rows {
		byOutcome[r.Outcome]++
	}
	if byOutcome[attempts.OutcomeDNCBlocked] != 1 || byOutcome[attempts.OutcomeCompleted] != 2 {
		t.Fatalf("outcomes = %v, want 1 dnc-blocked and 2 completed", byOutcome)
	}
	// A DNC skip is not a regulatory violation.
	n, err := f.violations.CountSince(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if n != 0 {
		t.Fatalf("violations = %d, want 0", n)
	}
}

func TestRunBlocksDailyCapWithViolation(t *testing.T) {
	f := newFixture(t, scriptedSim(telephony.CallStatusCompleted, 10), nil)

	s, _ := f.settings.Get(context.Background())
	s.DailyAttemptsLimit = 1
	if _, err := f.settings.Put(context.Background(), s); err != nil {
		t.Fatalf("settings: %v", err)
	}

	capped := contacts.Contact{ContactID: "ct-cap", PhoneNumber: "+15550000010", TimeZone: "UTC"}
	f.seedCampaign(t, "c1", "g1", []contacts.Contact{capped})

	// One dispatched attempt already today.
	row, err := f.store.Begin(context.Background(), attempts.AttemptLog{
		CampaignID: "earlier", ContactID: capped.ContactID, PhoneNumber: capped.PhoneNumber,
		RequestedAt: time.Now().UTC(), Outcome: attempts.OutcomeQueued,
	})
	if err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
	if err := f.store.Finalize(context.Background(), row.ID, attempts.OutcomeNoAnswer, 0, "", time.Now().UTC()); err != nil {
		t.Fatalf("seed finalize: %v", err)
	}

	if _, err := f.orch.Start(context.Background(), "c1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.waitStatus(t, "c1", campaigns.StatusCompleted, 2*time.Second)

	rows, _, err := f.store.ListByCampaign(context.Background(), "c1", attempts.LogQuery{})
	if err != nil {
		t.Fatalf("ListByCampaign: %v", err)
	}
	if len(rows) != 1 || rows[0].Outcome != attempts.OutcomeComplianceBlocked {
		t.Fatalf("rows = %+v, want one compliance-blocked row", rows)
	}
	vs, n, err := f.violations.ListRange(context.Background(), time.Time{}, time.Time{}, 1, 10)
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if n != 1 || vs[0].Type != compliance.ViolationTCPA || vs[0].PhoneNumber != capped.PhoneNumber {
		t.Fatalf("violations = %+v, want one TCPA for %s", vs, capped.PhoneNumber)
	}
}

// trackingProvider counts concurrently open calls to verify the ceiling.
type trackingProvider struct {
	delay time.Duration

	mu      sync.Mutex
	open    int
	maxSeen int
}

func (p *trackingProvider) Name() string                          { return "tracking" }
func (p *trackingProvider) HealthCheck(ctx context.Context) error { return nil }

func (p *trackingProvider) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) error {
	p.mu.Lock()
	p.open++
	if p.open > p.maxSeen {
		p.maxSeen = p.open
	}
	p.mu.Unlock()
	go func() {
		time.Sleep(p.delay)
		p.mu.Lock()
		p.open--
		p.mu.Unlock()
		req.OnResult(telephony.CallResult{Status: telephony.CallStatusCompleted, DurationSeconds: 5})
	}()
	return nil
}

func (p *trackingProvider) max() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxSeen
}

func TestCeilingBoundsInFlightAcrossCampaigns(t *testing.T) {
	provider := &trackingProvider{delay: 20 * time.Millisecond}
	ceiling, err := pacer.NewLocalCeiling(2)
	if err != nil {
		t.Fatalf("ceiling: %v", err)
	}
	f := newFixture(t, provider, ceiling)

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("c%d", i)
		var members []contacts.Contact
		for j := 1; j <= 3; j++ {
			members = append(members, contacts.Contact{
				ContactID:   fmt.Sprintf("%s-ct-%d", id, j),
				PhoneNumber: fmt.Sprintf("+1555%03d%04d", i, j),
				TimeZone:    "UTC",
			})
		}
		f.seedCampaign(t, id, "g-"+id, members)
		if _, err := f.orch.Start(context.Background(), id); err != nil {
			t.Fatalf("Start %s: %v", id, err)
		}
	}

	for i := 1; i <= 3; i++ {
		f.waitStatus(t, fmt.Sprintf("c%d", i), campaigns.StatusCompleted, 5*time.Second)
	}
	if provider.max() > 2 {
		t.Fatalf("max concurrent calls = %d, ceiling is 2", provider.max())
	}
	total := 0
	for i := 1; i <= 3; i++ {
		_, n, err := f.store.ListByCampaign(context.Background(), fmt.Sprintf("c%d", i), attempts.LogQuery{})
		if err != nil {
			t.Fatalf("ListByCampaign: %v", err)
		}
		total += n
	}
	if total != 9 {
		t.Fatalf("total rows = %d, want 9", total)
	}
}

func TestPauseStopsAdmissionsAndCancelFails(t *testing.T) {
	// Slow calls so the campaign is still mid-run when we pause.
	provider := &trackingProvider{delay: 30 * time.Millisecond}
	ceiling, err := pacer.NewLocalCeiling(1)
	if err != nil {
		t.Fatalf("ceiling: %v", err)
	}
	f := newFixture(t, provider, ceiling)

	var members []contacts.Contact
	for j := 1; j <= 10; j++ {
		members = append(members, contacts.Contact{
			ContactID:   fmt.Sprintf("ct-%d", j),
			PhoneNumber: fmt.Sprintf("+155500001%02d", j),
			TimeZone:    "UTC",
		})
	}
	f.seedCampaign(t, "c1", "g1", members)

	if _, err := f.orch.Start(context.Background(), "c1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, err := f.orch.Pause(context.Background(), "c1"); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	// Let in-flight work drain, then confirm no new dials happen.
	time.Sleep(60 * time.Millisecond)
	_, before, err := f.store.ListByCampaign(context.Background(), "c1", attempts.LogQuery{})
	if err != nil {
		t.Fatalf("ListByCampaign: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	_, after, err := f.store.ListByCampaign(context.Background(), "c1", attempts.LogQuery{})
	if err != nil {
		t.Fatalf("ListByCampaign: %v", err)
	}
	if after != before {
		t.Fatalf("rows grew from %d to %d while paused", before, after)
	}
	if after >= len(members) {
		t.Fatalf("pause landed too late to observe, %d rows", after)
	}

	c, err := f.orch.Cancel(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if c.Status != campaigns.StatusFailed || c.LastError != "canceled by operator" {
		t.Fatalf("after cancel: status=%s last_error=%q", c.Status, c.LastError)
	}
}

func TestStartFailsOnUnresolvableGroup(t *testing.T) {
	f := newFixture(t, scriptedSim(telephony.CallStatusCompleted, 1), nil)
	f.seedCampaign(t, "c1", "g1", nil)
	// Point the campaign at a group that does not exist.
	got, err := f.svc.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.ContactGroupID = "missing"
	if err := f.repo.Update(context.Background(), got); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := f.orch.Start(context.Background(), "c1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c := f.waitStatus(t, "c1", campaigns.StatusFailed, 2*time.Second)
	if c.LastError == "" {
		t.Fatal("failed campaign has no last_error")
	}
}

func TestResumeContinuesWithoutBurst(t *testing.T) {
	// Slow enough that the pause lands before the run completes.
	provider := &trackingProvider{delay: 30 * time.Millisecond}
	ceiling, err := pacer.NewLocalCeiling(1)
	if err != nil {
		t.Fatalf("ceiling: %v", err)
	}
	f := newFixture(t, provider, ceiling)
	members := []contacts.Contact{
		{ContactID: "ct-1", PhoneNumber: "+15550000021", TimeZone: "UTC"},
		{ContactID: "ct-2", PhoneNumber: "+15550000022", TimeZone: "UTC"},
	}
	f.seedCampaign(t, "c1", "g1", members)

	if _, err := f.orch.Start(context.Background(), "c1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.orch.Pause(context.Background(), "c1"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if _, err := f.orch.Resume(context.Background(), "c1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	f.waitStatus(t, "c1", campaigns.StatusCompleted, 2*time.Second)

	_, n, listErr := f.store.ListByCampaign(context.Background(), "c1", attempts.LogQuery{})
	if listErr != nil {
		t.Fatalf("ListByCampaign: %v", listErr)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
}

// flakyCeiling simulates a shared-ceiling backend outage.
type flakyCeiling struct {
	inner  pacer.Ceiling
	broken atomic.Bool
}

func (c *flakyCeiling) Acquire(ctx context.Context) error {
	if c.broken.Load() {
		return errors.New("redis: connection refused")
	}
	return c.inner.Acquire(ctx)
}

func (c *flakyCeiling) Release(ctx context.Context) { c.inner.Release(ctx) }

func TestCeilingFaultPausesCampaignAndResumeRecovers(t *testing.T) {
	inner, err := pacer.NewLocalCeiling(10)
	if err != nil {
		t.Fatalf("ceiling: %v", err)
	}
	ceiling := &flakyCeiling{inner: inner}
	ceiling.broken.Store(true)

	f := newFixture(t, scriptedSim(telephony.CallStatusCompleted, 10), ceiling)
	members := []contacts.Contact{
		{ContactID: "ct-1", PhoneNumber: "+15550000001", TimeZone: "UTC"},
		{ContactID: "ct-2", PhoneNumber: "+15550000002", TimeZone: "UTC"},
	}
	f.seedCampaign(t, "c1", "g1", members)

	if _, err := f.orch.Start(context.Background(), "c1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// The ceiling fault must pause the campaign, not strand it running.
	f.waitStatus(t, "c1", campaigns.StatusPaused, 2*time.Second)

	_, n, err := f.store.ListByCampaign(context.Background(), "c1", attempts.LogQuery{})
	if err != nil {
		t.Fatalf("ListByCampaign: %v", err)
	}
	if n != 0 {
		t.Fatalf("rows while ceiling down = %d, want 0", n)
	}

	ceiling.broken.Store(false)
	if _, err := f.orch.Resume(context.Background(), "c1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	f.waitStatus(t, "c1", campaigns.StatusCompleted, 3*time.Second)

	rows, _, err := f.store.ListByCampaign(context.Background(), "c1", attempts.LogQuery{})
	if err != nil {
		t.Fatalf("ListByCampaign: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows after recovery = %d, want 2", len(rows))
	}
	for _, r := range rows {
		if r.Outcome != attempts.OutcomeCompleted {
			t.Fatalf("outcome = %s, want completed", r.Outcome)
		}
	}
}

func TestUpdateRateRepacesLiveRun(t *testing.T) {
	f := newFixture(t, scriptedSim(telephony.CallStatusCompleted, 5), nil)
	f.contacts.SetGroup("g1", []contacts.Contact{
		{ContactID: "ct-1", PhoneNumber: "+15550000001", TimeZone: "UTC"},
	})
	// Rate 1 starves the run: the bucket starts empty and the first
	// token is a minute out.
	now := time.Now().UTC()
	c := campaigns.Campaign{
		CampaignID:           "c1",
		Name:                 "test c1",
		Status:               campaigns.StatusQueued,
		ContactGroupID:       "g1",
		CallerIDs:            []string{"+15550009999"},
		TargetCallsPerMinute: 1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := f.repo.Create(context.Background(), c); err != nil {
		t.Fatalf("seed campaign: %v", err)
	}

	if _, err := f.orch.Start(context.Background(), "c1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	updated, err := f.orch.UpdateRate(context.Background(), "c1", 60)
	if err != nil {
		t.Fatalf("UpdateRate: %v", err)
	}
	if updated.TargetCallsPerMinute != 60 {
		t.Fatalf("rate = %d, want 60", updated.TargetCallsPerMinute)
	}

	// At the new rate the first token accrues within about a second,
	// which only happens if the live bucket picked up the change.
	f.waitStatus(t, "c1", campaigns.StatusCompleted, 4*time.Second)
}
