package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

// ErrAlreadyProcessed is returned when a claim targets an approval that has
// already left the pending state. The losing caller must not re-execute.
var ErrAlreadyProcessed = errors.New("approval already processed")

// ErrApprovalNotFound is returned for unknown approval ids.
var ErrApprovalNotFound = errors.New("approval not found")

func (db *Postgres) EnsureApprovalSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS approvals (
			id TEXT PRIMARY KEY,
			incident_id TEXT NOT NULL REFERENCES incidents(id),
			action TEXT NOT NULL,
			params JSONB NOT NULL DEFAULT '{}',
			risk_tier TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			rationale TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			decided_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			decided_at TIMESTAMPTZ
		)
		`,
		`CREATE INDEX IF NOT EXISTS approvals_status_idx ON approvals(status)`,
		`CREATE INDEX IF NOT EXISTS approvals_incident_id_idx ON approvals(incident_id)`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (db *Postgres) CreateApproval(ctx context.Context, ap model.PendingApproval) error {
	params, err := json.Marshal(ap.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	query := `
		INSERT INTO approvals (
			id, incident_id, action, params, risk_tier, confidence,
			rationale, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8)
	`
	_, err = db.Pool.Exec(ctx, query,
		ap.ID,
		ap.IncidentID,
		ap.Action,
		params,
		ap.RiskTier,
		ap.Confidence,
		ap.Rationale,
		ap.CreatedAt,
	)
	return err
}

const approvalColumns = `
	id, incident_id, action, params, risk_tier, confidence,
	rationale, status, decided_by, created_at, decided_at
`

func scanApproval(row interface{ Scan(...any) error }) (*model.PendingApproval, error) {
	var ap model.PendingApproval
	var params []byte
	if err := row.Scan(
		&ap.ID,
		&ap.IncidentID,
		&ap.Action,
		&params,
		&ap.RiskTier,
		&ap.Confidence,
		&ap.Rationale,
		&ap.Status,
		&ap.DecidedBy,
		&ap.CreatedAt,
		&ap.DecidedAt,
	); err != nil {
		return nil, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &ap.Params); err != nil {
			return nil, fmt.Errorf("failed to decode params for %s: %w", ap.ID, err)
		}
	}
	return &ap, nil
}

func (db *Postgres) GetApproval(ctx context.Context, id string) (*model.PendingApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`
	ap, err := scanApproval(db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, fmt.Errorf("%w: %s", ErrApprovalNotFound, id)
		}
		return nil, err
	}
	return ap, nil
}

func (db *Postgres) ListPendingApprovals(ctx context.Context) ([]model.PendingApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE status = 'pending' ORDER BY created_at`
	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []model.PendingApproval{}
	for rows.Next() {
		ap, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *ap)
	}
	return list, rows.Err()
}

// ClaimApproval atomically moves one approval out of pending. Exactly one
// caller wins; every later claim sees zero rows affected and gets
// ErrAlreadyProcessed. This is the whole exactly-once guarantee, so the
// status guard stays in the WHERE clause.
func (db *Postgres) ClaimApproval(ctx context.Context, id, newStatus, decidedBy string, decidedAt time.Time) (*model.PendingApproval, error) {
	query := `
		UPDATE approvals
		SET status = $2, decided_by = $3, decided_at = $4
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := db.Pool.Exec(ctx, query, id, newStatus, decidedBy, decidedAt)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		// Lost the race or the id is unknown. Look up which.
		if _, err := db.GetApproval(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, id)
	}
	return db.GetApproval(ctx, id)
}

// ExpireStaleApprovals sweeps pending approvals created before cutoff into
// the expired state and returns them so the caller can resolve their
// incidents.
func (db *Postgres) ExpireStaleApprovals(ctx context.Context, cutoff, decidedAt time.Time) ([]model.PendingApproval, error) {
	query := `
		UPDATE approvals
		SET status = 'expired', decided_at = $2
		WHERE status = 'pending' AND created_at < $1
		RETURNING ` + approvalColumns
	rows, err := db.Pool.Query(ctx, query, cutoff, decidedAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expired := []model.PendingApproval{}
	for rows.Next() {
		ap, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *ap)
	}
	return expired, rows.Err()
}

// CountPendingApprovals feeds the pending-approvals gauge.
func (db *Postgres) CountPendingApprovals(ctx context.Context) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM approvals WHERE status = 'pending'`).Scan(&n)
	return n, err
}
