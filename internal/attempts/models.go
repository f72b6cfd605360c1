package attempts

import "time"

// AttemptLog is one dial attempt against one contact.
//
// Invariants:
//   - Rows are append-only; the only in-place updates are the
//     queued -> dialing progression and the single terminal finalize.
//   - AttemptNumber is 1-based and strictly increasing per
//     (campaign_id, contact_id).
//   - Terminal outcomes are write-once: a finalized row never changes again.
type AttemptLog struct {
	ID         string `json:"id" db:"id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	ContactID  string `json:"contact_id" db:"contact_id"`

	PhoneNumber   string `json:"phone_number" db:"phone_number"`
	AttemptNumber int    `json:"attempt_number" db:"attempt_number"`

	// CallerID and AgentID record what the dial worker selected.
	CallerID string `json:"caller_id,omitempty" db:"caller_id"`
	AgentID  string `json:"agent_id,omitempty" db:"agent_id"`

	RequestedAt time.Time  `json:"requested_at" db:"requested_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`

	Outcome Outcome `json:"outcome" db:"outcome"`

	// CallDurationSeconds is present only for answered/completed calls.
	CallDurationSeconds int `json:"call_duration,omitempty" db:"call_duration"`

	// ProviderDetails is an opaque error/reason string from the telephony layer.
	ProviderDetails string `json:"provider_details,omitempty" db:"provider_details"`
}

type Outcome string

const (
	OutcomeQueued    Outcome = "queued"
	OutcomeDialing   Outcome = "dialing"
	OutcomeAnswered  Outcome = "answered"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeNoAnswer  Outcome = "no-answer"
	OutcomeBusy      Outcome = "busy"
	OutcomeCanceled  Outcome = "canceled"

	// Blocked outcomes are written by the orchestrator before any dial
	// happens; no pacing token is consumed for them.
	OutcomeDNCBlocked        Outcome = "dnc-blocked"
	OutcomeComplianceBlocked Outcome = "compliance-blocked"
)

// IsTerminal reports whether an outcome is final for its row.
func (o Outcome) IsTerminal() bool {
	switch o {
	case OutcomeQueued, OutcomeDialing:
		return false
	default:
		return true
	}
}

// IsBlocked reports whether an outcome means the contact was never dialed.
// Blocked rows do not count against per-contact attempt limits.
func (o Outcome) IsBlocked() bool {
	return o == OutcomeDNCBlocked || o == OutcomeComplianceBlocked
}

// CountsAsAttempt reports whether the row consumes one of the contact's
// daily/weekly/lifetime attempt budget. Every dispatched dial counts,
// regardless of how it ended.
func (o Outcome) CountsAsAttempt() bool {
	return !o.IsBlocked()
}
