package campaigns

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// PostgresRepo persists campaigns in the dialer_campaigns table.
// caller_ids is a JSONB column; ordering inside the rotation matters.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Create(ctx context.Context, c Campaign) error {
	if c.CampaignID == "" {
		return ErrInvalidArgument
	}
	callerIDs, err := json.Marshal(c.CallerIDs)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO dialer_campaigns (
  campaign_id, name, status, contact_group_id, caller_ids,
  assigned_agent_id, target_calls_per_minute, last_error, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
	_, err = r.db.ExecContext(ctx, q,
		c.CampaignID,
		c.Name,
		c.Status,
		c.ContactGroupID,
		callerIDs,
		c.AssignedAgentID,
		c.TargetCallsPerMinute,
		c.LastError,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Campaign, error) {
	const q = `
SELECT campaign_id, name, status, contact_group_id, caller_ids,
       assigned_agent_id, target_calls_per_minute, last_error, created_at, updated_at
FROM dialer_campaigns
WHERE campaign_id = $1
`
	c, err := scanCampaign(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) List(ctx context.Context) ([]Campaign, error) {
	const q = `
SELECT campaign_id, name, status, contact_group_id, caller_ids,
       assigned_agent_id, target_calls_per_minute, last_error, created_at, updated_at
FROM dialer_campaigns
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Update(ctx context.Context, c Campaign) error {
	callerIDs, err := json.Marshal(c.CallerIDs)
	if err != nil {
		return err
	}
	const q = `
UPDATE dialer_campaigns
SET name = $2, status = $3, contact_group_id = $4, caller_ids = $5,
    assigned_agent_id = $6, target_calls_per_minute = $7, last_error = $8,
    updated_at = $9
WHERE campaign_id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		c.CampaignID,
		c.Name,
		c.Status,
		c.ContactGroupID,
		callerIDs,
		c.AssignedAgentID,
		c.TargetCallsPerMinute,
		c.LastError,
		c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (Campaign, error) {
	var c Campaign
	var callerIDs []byte
	if err := row.Scan(
		&c.CampaignID,
		&c.Name,
		&c.Status,
		&c.ContactGroupID,
		&callerIDs,
		&c.AssignedAgentID,
		&c.TargetCallsPerMinute,
		&c.LastError,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return Campaign{}, err
	}
	if len(callerIDs) > 0 {
		if err := json.Unmarshal(callerIDs, &c.CallerIDs); err != nil {
			return Campaign{}, err
		}
	}
	return c, nil
}
