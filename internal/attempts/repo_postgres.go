package attempts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dialer-engine/pkg/utils"

	"github.com/google/uuid"
)

// PostgresStore persists attempt logs in the attempt_logs table.
//
// Assumed schema constraints:
//   - UNIQUE (campaign_id, contact_id, attempt_number): backstop for the
//     per-contact numbering race; a violating insert fails instead of
//     producing duplicate attempt numbers.
//   - Terminal outcomes are enforced in SQL by finalizing only rows whose
//     outcome is still queued/dialing.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Begin(ctx context.Context, a AttemptLog) (AttemptLog, error) {
	if err := validateNew(a); err != nil {
		return AttemptLog{}, err
	}
	a.ID = uuid.NewString()
	a.Outcome = OutcomeQueued
	a.ResolvedAt = nil
	return s.insertNumbered(ctx, a)
}

func (s *PostgresStore) RecordBlocked(ctx context.Context, a AttemptLog) (AttemptLog, error) {
	if err := validateNew(a); err != nil {
		return AttemptLog{}, err
	}
	if !a.Outcome.IsBlocked() {
		return AttemptLog{}, ErrInvalidArgument
	}
	a.ID = uuid.NewString()
	t := a.RequestedAt.UTC()
	a.ResolvedAt = &t
	return s.insertNumbered(ctx, a)
}

// insertNumbered assigns the next attempt number inside a transaction that
// serializes per (campaign_id, contact_id) via an advisory lock, so two
// concurrent inserts for the same contact cannot collide.
func (s *PostgresStore) insertNumbered(ctx context.Context, a AttemptLog) (AttemptLog, error) {
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1))`,
			a.CampaignID+"|"+a.ContactID,
		); err != nil {
			return err
		}

		if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(attempt_number), 0) + 1
FROM attempt_logs
WHERE campaign_id = $1 AND contact_id = $2
`, a.CampaignID, a.ContactID).Scan(&a.AttemptNumber); err != nil {
			return err
		}

		const q = `
INSERT INTO attempt_logs (
  id, campaign_id, contact_id, phone_number, attempt_number,
  caller_id, agent_id, requested_at, resolved_at, outcome,
  call_duration, provider_details
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
`
		_, err := tx.ExecContext(ctx, q,
			a.ID,
			a.CampaignID,
			a.ContactID,
			a.PhoneNumber,
			a.AttemptNumber,
			a.CallerID,
			a.AgentID,
			a.RequestedAt.UTC(),
			nullableTime(a.ResolvedAt),
			a.Outcome,
			a.CallDurationSeconds,
			a.ProviderDetails,
		)
		return err
	})
	if err != nil {
		return AttemptLog{}, err
	}
	return a, nil
}

func (s *PostgresStore) MarkDialing(ctx context.Context, id string, at time.Time) error {
	const q = `
UPDATE attempt_logs
SET outcome = $2
WHERE id = $1 AND outcome = $3
`
	res, err := s.db.ExecContext(ctx, q, id, OutcomeDialing, OutcomeQueued)
	if err != nil {
		return err
	}
	return checkUpdated(ctx, s.db, res, id)
}

func (s *PostgresStore) Finalize(ctx context.Context, id string, outcome Outcome, durationSeconds int, providerDetails string, at time.Time) error {
	if !outcome.IsTerminal() {
		return ErrInvalidArgument
	}
	if outcome != OutcomeAnswered && outcome != OutcomeCompleted {
		durationSeconds = 0
	}
	const q = `
UPDATE attempt_logs
SET outcome = $2, call_duration = $3, provider_details = $4, resolved_at = $5
WHERE id = $1 AND outcome IN ($6, $7)
`
	res, err := s.db.ExecContext(ctx, q, id, outcome, durationSeconds, providerDetails, at.UTC(), OutcomeQueued, OutcomeDialing)
	if err != nil {
		return err
	}
	return checkUpdated(ctx, s.db, res, id)
}

// checkUpdated distinguishes "row missing" from "row already terminal" when
// a guarded update matched nothing.
func checkUpdated(ctx context.Context, db *sql.DB, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM attempt_logs WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyFinal
}

func (s *PostgresStore) ListByCampaign(ctx context.Context, campaignID string, q LogQuery) ([]AttemptLog, int, error) {
	if campaignID == "" {
		return nil, 0, ErrInvalidArgument
	}
	q = q.withDefaults()

	where := `campaign_id = $1`
	args := []any{campaignID}
	if needle := q.Search; needle != "" {
		where += ` AND (phone_number ILIKE $2 OR outcome::text ILIKE $2 OR provider_details ILIKE $2)`
		args = append(args, "%"+needle+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempt_logs WHERE `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
SELECT id, campaign_id, contact_id, phone_number, attempt_number,
       caller_id, agent_id, requested_at, resolved_at, outcome,
       call_duration, provider_details
FROM attempt_logs
WHERE %s
ORDER BY requested_at DESC
LIMIT %d OFFSET %d
`, where, q.PerPage, (q.Page-1)*q.PerPage)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]AttemptLog, 0, q.PerPage)
	for rows.Next() {
		var a AttemptLog
		var resolved sql.NullTime
		if err := rows.Scan(
			&a.ID,
			&a.CampaignID,
			&a.ContactID,
			&a.PhoneNumber,
			&a.AttemptNumber,
			&a.CallerID,
			&a.AgentID,
			&a.RequestedAt,
			&resolved,
			&a.Outcome,
			&a.CallDurationSeconds,
			&a.ProviderDetails,
		); err != nil {
			return nil, 0, err
		}
		if resolved.Valid {
			t := resolved.Time
			a.ResolvedAt = &t
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) CountContactAttemptsSince(ctx context.Context, contactID string, since time.Time) (int, error) {
	const q = `
SELECT COUNT(*)
FROM attempt_logs
WHERE contact_id = $1 AND requested_at >= $2 AND outcome NOT IN ($3, $4)
`
	var n int
	err := s.db.QueryRowContext(ctx, q, contactID, since.UTC(), OutcomeDNCBlocked, OutcomeComplianceBlocked).Scan(&n)
	return n, err
}

func (s *PostgresStore) CountContactAttempts(ctx context.Context, contactID string) (int, error) {
	const q = `
SELECT COUNT(*)
FROM attempt_logs
WHERE contact_id = $1 AND outcome NOT IN ($2, $3)
`
	var n int
	err := s.db.QueryRowContext(ctx, q, contactID, OutcomeDNCBlocked, OutcomeComplianceBlocked).Scan(&n)
	return n, err
}

func (s *PostgresStore) CountActive(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) FROM attempt_logs WHERE outcome IN ($1, $2)`
	var n int
	err := s.db.QueryRowContext(ctx, q, OutcomeQueued, OutcomeDialing).Scan(&n)
	return n, err
}

func (s *PostgresStore) CountByOutcomeSince(ctx context.Context, since time.Time) (map[Outcome]int, error) {
	const q = `
SELECT outcome, COUNT(*)
FROM attempt_logs
WHERE requested_at >= $1
GROUP BY outcome
`
	rows, err := s.db.QueryContext(ctx, q, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[Outcome]int{}
	for rows.Next() {
		var o Outcome
		var n int
		if err := rows.Scan(&o, &n); err != nil {
			return nil, err
		}
		out[o] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountDialedSince(ctx context.Context, since time.Time) (int, error) {
	const q = `
SELECT COUNT(*)
FROM attempt_logs
WHERE requested_at >= $1 AND outcome NOT IN ($2, $3)
`
	var n int
	err := s.db.QueryRowContext(ctx, q, since.UTC(), OutcomeDNCBlocked, OutcomeComplianceBlocked).Scan(&n)
	return n, err
}

func (s *PostgresStore) AverageDurationSince(ctx context.Context, since time.Time) (float64, int, error) {
	const q = `
SELECT COALESCE(AVG(call_duration), 0), COUNT(*)
FROM attempt_logs
WHERE outcome IN ($1, $2) AND resolved_at >= $3
`
	var avg float64
	var n int
	err := s.db.QueryRowContext(ctx, q, OutcomeAnswered, OutcomeCompleted, since.UTC()).Scan(&avg, &n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	return avg, n, err
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
