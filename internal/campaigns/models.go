package campaigns

import "time"

// Campaign is a configured outbound dialing run over one contact group.
//
// Invariants:
// - Status moves only through the transitions in statemachine.go.
// - CallerIDs must be non-empty before the campaign may enter running.
// - completed and failed are terminal; a campaign never re-enters running.
type Campaign struct {
	CampaignID string         `json:"campaign_id" db:"campaign_id"`
	Name       string         `json:"name" db:"name"`
	Status     CampaignStatus `json:"status" db:"status"`

	// ContactGroupID references the platform's contact storage; the
	// engine never owns or mutates the group.
	ContactGroupID string `json:"contact_group_id" db:"contact_group_id"`

	// CallerIDs are rotated round-robin as the outbound caller ID.
	CallerIDs []string `json:"caller_ids" db:"caller_ids"`

	// AssignedAgentID pins every call to one agent. The value "auto"
	// (or empty) selects the least-recently-assigned available agent
	// per call instead.
	AssignedAgentID string `json:"assigned_agent_id,omitempty" db:"assigned_agent_id"`

	// TargetCallsPerMinute is the pacing rate, 1..60.
	TargetCallsPerMinute int `json:"target_calls_per_minute" db:"target_calls_per_minute"`

	// LastError carries the reason for a failed status.
	LastError string `json:"last_error,omitempty" db:"last_error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CampaignStatus string

const (
	StatusQueued    CampaignStatus = "queued"
	StatusRunning   CampaignStatus = "running"
	StatusPaused    CampaignStatus = "paused"
	StatusCompleted CampaignStatus = "completed"
	StatusFailed    CampaignStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s CampaignStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AutoAssign reports whether agents are picked per call.
func (c Campaign) AutoAssign() bool {
	return c.AssignedAgentID == "" || c.AssignedAgentID == "auto"
}
