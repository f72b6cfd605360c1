package compliance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dialer-engine/pkg/utils"

	"github.com/google/uuid"
)

// PostgresViolations persists violations in the compliance_violations table.
type PostgresViolations struct {
	db *sql.DB
}

func NewPostgresViolations(db *sql.DB) *PostgresViolations { return &PostgresViolations{db: db} }

func (r *PostgresViolations) Append(ctx context.Context, v Violation) error {
	if v.PhoneNumber == "" || v.Type == "" {
		return ErrInvalidArgument
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	const q = `
INSERT INTO compliance_violations (id, ts, phone_number, type, reason)
VALUES ($1,$2,$3,$4,$5)
`
	_, err := r.db.ExecContext(ctx, q, v.ID, v.Timestamp.UTC(), v.PhoneNumber, v.Type, v.Reason)
	return err
}

func (r *PostgresViolations) ListRange(ctx context.Context, from, to time.Time, page, perPage int) ([]Violation, int, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Hour)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM compliance_violations WHERE ts >= $1 AND ts < $2`,
		from.UTC(), to.UTC(),
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	const q = `
SELECT id, ts, phone_number, type, reason
FROM compliance_violations
WHERE ts >= $1 AND ts < $2
ORDER BY ts DESC
LIMIT $3 OFFSET $4
`
	rows, err := r.db.QueryContext(ctx, q, from.UTC(), to.UTC(), perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Violation, 0, perPage)
	for rows.Next() {
		var v Violation
		if err := rows.Scan(&v.ID, &v.Timestamp, &v.PhoneNumber, &v.Type, &v.Reason); err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

func (r *PostgresViolations) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM compliance_violations WHERE ts >= $1`, since.UTC(),
	).Scan(&n)
	return n, err
}

// PostgresSettings stores the single active settings row. Writes bump the
// version inside a transaction so concurrent admin saves serialize.
type PostgresSettings struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresSettings(db *sql.DB) *PostgresSettings {
	return &PostgresSettings{db: db, clock: time.Now}
}

func (r *PostgresSettings) Get(ctx context.Context) (Settings, error) {
	const q = `
SELECT version, calling_hours_start, calling_hours_end,
       daily_attempts_limit, weekly_attempts_limit, total_attempts_limit,
       enforce_tcpa, enforce_fdcpa, updated_at
FROM compliance_settings
ORDER BY version DESC
LIMIT 1
`
	var s Settings
	err := r.db.QueryRowContext(ctx, q).Scan(
		&s.Version,
		&s.CallingHoursStart,
		&s.CallingHoursEnd,
		&s.DailyAttemptsLimit,
		&s.WeeklyAttemptsLimit,
		&s.TotalAttemptsLimit,
		&s.EnforceTCPA,
		&s.EnforceFDCPA,
		&s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (r *PostgresSettings) Put(ctx context.Context, s Settings) (Settings, error) {
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}

	now := r.clock().UTC()
	var out Settings
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		var version int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM compliance_settings`,
		).Scan(&version); err != nil {
			return err
		}
		out = s
		out.Version = version + 1
		out.UpdatedAt = now

		const q = `
INSERT INTO compliance_settings (
  version, calling_hours_start, calling_hours_end,
  daily_attempts_limit, weekly_attempts_limit, total_attempts_limit,
  enforce_tcpa, enforce_fdcpa, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
		_, err := tx.ExecContext(ctx, q,
			out.Version,
			out.CallingHoursStart,
			out.CallingHoursEnd,
			out.DailyAttemptsLimit,
			out.WeeklyAttemptsLimit,
			out.TotalAttemptsLimit,
			out.EnforceTCPA,
			out.EnforceFDCPA,
			out.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return Settings{}, err
	}
	return out, nil
}
