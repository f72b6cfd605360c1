package metrics

import (
	"context"
	"fmt"
	"math"
	"time"

	"dialer-engine/internal/attempts"
	"dialer-engine/internal/compliance"
)

// LiveState is the slice of engine state that cannot be derived from the
// attempt log: what is on the wire right now. *dialer.Worker satisfies it.
// A nil LiveState switches ActiveCalls to counting the log's unfinalized
// rows and leaves ConnectedAgents at zero.
type LiveState interface {
	InFlight() int
	ConnectedAgents() int
}

// Dashboard is one aggregated snapshot for the dashboard header.
//
// Everything except ActiveCalls and ConnectedAgents is computed from the
// attempt log and the violation store, so a dashboard read is consistent
// with the log view it sits above. "Today" is the UTC day.
type Dashboard struct {
	ActiveCalls     int `json:"active_calls"`
	ConnectedAgents int `json:"connected_agents"`

	// CallsPerMinute counts dials dispatched in the trailing 60 seconds.
	CallsPerMinute int `json:"calls_per_minute"`

	TotalCallsToday int `json:"total_calls_today"`
	FailedCalls     int `json:"failed_calls"`

	// SuccessRate is completed over all resolved dials today
	// (completed, failed, no-answer, busy), as a percentage.
	SuccessRate float64 `json:"success_rate"`

	// AvgCallDuration is rendered M:SS over today's answered and
	// completed calls.
	AvgCallDuration string `json:"avg_call_duration"`

	DNCBlocked        int `json:"dnc_blocked"`
	ComplianceBlocked int `json:"compliance_blocked"`

	// ComplianceScore is 100 minus today's violation share of dispatched
	// dials, clamped to [0, 100].
	ComplianceScore float64 `json:"compliance_score"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Service computes dashboard aggregates. Stateless; every call reads the
// stores, so two calls over an unchanged log return identical numbers.
type Service struct {
	store      attempts.Store
	violations compliance.ViolationRepository
	live       LiveState
	clock      func() time.Time
}

func NewService(store attempts.Store, violations compliance.ViolationRepository, live LiveState) *Service {
	return &Service{store: store, violations: violations, live: live, clock: time.Now}
}

func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	now := s.clock().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	byOutcome, err := s.store.CountByOutcomeSince(ctx, dayStart)
	if err != nil {
		return Dashboard{}, fmt.Errorf("metrics: outcome counts: %w", err)
	}
	dialedToday, err := s.store.CountDialedSince(ctx, dayStart)
	if err != nil {
		return Dashboard{}, fmt.Errorf("metrics: dialed today: %w", err)
	}
	perMinute, err := s.store.CountDialedSince(ctx, now.Add(-time.Minute))
	if err != nil {
		return Dashboard{}, fmt.Errorf("metrics: calls per minute: %w", err)
	}
	avgSeconds, samples, err := s.store.AverageDurationSince(ctx, dayStart)
	if err != nil {
		return Dashboard{}, fmt.Errorf("metrics: average duration: %w", err)
	}
	violationsToday, err := s.violations.CountSince(ctx, dayStart)
	if err != nil {
		return Dashboard{}, fmt.Errorf("metrics: violation count: %w", err)
	}

	completed := byOutcome[attempts.OutcomeCompleted]
	resolved := completed + byOutcome[attempts.OutcomeFailed] +
		byOutcome[attempts.OutcomeNoAnswer] + byOutcome[attempts.OutcomeBusy]
	successRate := 0.0
	if resolved > 0 {
		successRate = round1(100 * float64(completed) / float64(resolved))
	}

	d := Dashboard{
		CallsPerMinute:    perMinute,
		TotalCallsToday:   dialedToday,
		FailedCalls:       byOutcome[attempts.OutcomeFailed],
		SuccessRate:       successRate,
		AvgCallDuration:   formatDuration(avgSeconds, samples),
		DNCBlocked:        byOutcome[attempts.OutcomeDNCBlocked],
		ComplianceBlocked: byOutcome[attempts.OutcomeComplianceBlocked],
		ComplianceScore:   complianceScore(violationsToday, dialedToday),
		GeneratedAt:       now,
	}
	if s.live != nil {
		d.ActiveCalls = s.live.InFlight()
		d.ConnectedAgents = s.live.ConnectedAgents()
	} else {
		// No dialer in this process (e.g. a read-only dashboard
		// deployment): fall back to unfinalized rows in the log.
		active, err := s.store.CountActive(ctx)
		if err != nil {
			return Dashboard{}, fmt.Errorf("metrics: active calls: %w", err)
		}
		d.ActiveCalls = active
	}
	return d, nil
}

func complianceScore(violations, dialed int) float64 {
	denom := dialed
	if denom < 1 {
		denom = 1
	}
	score := 100 * (1 - float64(violations)/float64(denom))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return round1(score)
}

// formatDuration renders seconds as M:SS; no samples renders 0:00.
func formatDuration(avgSeconds float64, samples int) string {
	if samples == 0 || avgSeconds <= 0 {
		return "0:00"
	}
	total := int(math.Round(avgSeconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
