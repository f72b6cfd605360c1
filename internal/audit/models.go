package audit

import "time"

// Event is an immutable, append-only record of an engine-level action.
//
// Invariants:
//   - Events are never updated or deleted.
//   - Actor capture is best-effort; never block dialing or lifecycle flows
//     on audit failures.
//
// Storage recommendation (Postgres): INSERT-only table dialer_audit_events,
// optionally partitioned by time for retention.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated dashboard user causing the event,
	// empty for automatic engine transitions.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`

	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`

	// FromStatus/ToStatus describe a lifecycle transition when applicable.
	FromStatus string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string `json:"to_status,omitempty" db:"to_status"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCampaignTransition EventType = "campaign_transition"
	EventTypeSettingsUpdate     EventType = "settings_update"
)
