package attempts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("attempts: not found")
	ErrInvalidArgument = errors.New("attempts: invalid argument")
	// ErrAlreadyFinal is returned when a terminal row is finalized again or
	// moved back to dialing. Terminal outcomes are write-once.
	ErrAlreadyFinal = errors.New("attempts: attempt already finalized")
)

// LogQuery selects a page of attempt rows for the dashboard log view.
// Search is a free-text match over phone number, outcome, and provider details.
type LogQuery struct {
	Page    int
	PerPage int
	Search  string
}

func (q LogQuery) withDefaults() LogQuery {
	out := q
	if out.Page <= 0 {
		out.Page = 1
	}
	if out.PerPage <= 0 || out.PerPage > 200 {
		out.PerPage = 50
	}
	return out
}

// Store is the durable record of every attempt and its outcome.
//
// Writes come only from the engine (orchestrator and dial workers).
// Reads serve the compliance gate's counts and the dashboard aggregations,
// so they must stay available even while dialing is degraded.
type Store interface {
	// Begin appends a new attempt with outcome queued, assigning the row id
	// and the next attempt number for (campaign_id, contact_id) atomically.
	Begin(ctx context.Context, a AttemptLog) (AttemptLog, error)

	// MarkDialing moves a queued attempt to dialing.
	MarkDialing(ctx context.Context, id string, at time.Time) error

	// Finalize writes the terminal outcome exactly once.
	Finalize(ctx context.Context, id string, outcome Outcome, durationSeconds int, providerDetails string, at time.Time) error

	// RecordBlocked appends an already-terminal blocked row
	// (dnc-blocked / compliance-blocked) without consuming a dial.
	RecordBlocked(ctx context.Context, a AttemptLog) (AttemptLog, error)

	// ListByCampaign returns a page of rows, newest first, plus the total
	// matching count.
	ListByCampaign(ctx context.Context, campaignID string, q LogQuery) ([]AttemptLog, int, error)

	// CountContactAttemptsSince counts dispatched dials (blocked rows
	// excluded) for a contact with requested_at >= since.
	CountContactAttemptsSince(ctx context.Context, contactID string, since time.Time) (int, error)

	// CountContactAttempts counts all dispatched dials for a contact.
	CountContactAttempts(ctx context.Context, contactID string) (int, error)

	// CountActive counts rows currently queued or dialing.
	CountActive(ctx context.Context) (int, error)

	// CountByOutcomeSince buckets rows with requested_at >= since by outcome.
	CountByOutcomeSince(ctx context.Context, since time.Time) (map[Outcome]int, error)

	// CountDialedSince counts dispatched dials with requested_at >= since.
	CountDialedSince(ctx context.Context, since time.Time) (int, error)

	// AverageDurationSince averages call_duration over answered/completed
	// rows resolved at or after since. n is the sample size.
	AverageDurationSince(ctx context.Context, since time.Time) (avgSeconds float64, n int, err error)
}

func validateNew(a AttemptLog) error {
	if a.CampaignID == "" || a.ContactID == "" || a.PhoneNumber == "" {
		return ErrInvalidArgument
	}
	if a.RequestedAt.IsZero() {
		return ErrInvalidArgument
	}
	return nil
}
