package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

// ErrRecordResolved is returned when a write targets an incident that has
// already reached the resolved status. Resolved rows are immutable.
var ErrRecordResolved = errors.New("incident already resolved")

// ErrIncidentNotFound is returned when a read targets an unknown incident id.
var ErrIncidentNotFound = errors.New("incident not found")

// EnsureIncidentSchema creates the incidents table and its indexes.
// Idempotent, safe to run on every startup.
func (db *Postgres) EnsureIncidentSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			alert_name TEXT NOT NULL,
			severity TEXT NOT NULL DEFAULT 'warning',
			namespace TEXT NOT NULL DEFAULT '',
			target TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			fingerprint TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'new',
			resolution TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL DEFAULT '',
			risk_tier TEXT NOT NULL DEFAULT '',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			rationale TEXT NOT NULL DEFAULT '',
			log_excerpt TEXT NOT NULL DEFAULT '',
			steps JSONB NOT NULL DEFAULT '[]',
			verify_outcome TEXT NOT NULL DEFAULT '',
			verify_detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			resolved_at TIMESTAMPTZ
		)
		`,
		`CREATE INDEX IF NOT EXISTS incidents_fingerprint_idx ON incidents(fingerprint) WHERE fingerprint != ''`,
		`CREATE INDEX IF NOT EXISTS incidents_status_idx ON incidents(status)`,
		`CREATE INDEX IF NOT EXISTS incidents_namespace_idx ON incidents(namespace)`,
		`CREATE INDEX IF NOT EXISTS incidents_created_at_idx ON incidents(created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// CreateIncident inserts a fresh ledger row in status new.
func (db *Postgres) CreateIncident(ctx context.Context, rec model.IncidentRecord) error {
	query := `
		INSERT INTO incidents (
			id, alert_name, severity, namespace, target, description,
			fingerprint, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := db.Pool.Exec(ctx, query,
		rec.ID,
		rec.AlertName,
		rec.Severity,
		rec.Namespace,
		rec.Target,
		rec.Description,
		rec.Fingerprint,
		model.IncidentStatusNew,
		rec.CreatedAt,
	)
	return err
}

// UpdateDecision records the engine's verdict and the assembled log excerpt.
// Refused once the incident is resolved.
func (db *Postgres) UpdateDecision(ctx context.Context, id, action, riskTier string, confidence float64, rationale, logExcerpt string) error {
	query := `
		UPDATE incidents
		SET action = $2, risk_tier = $3, confidence = $4, rationale = $5, log_excerpt = $6
		WHERE id = $1 AND status != 'resolved'
	`
	tag, err := db.Pool.Exec(ctx, query, id, action, riskTier, confidence, rationale, logExcerpt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.mutationRefused(ctx, id)
	}
	return nil
}

// AppendStep appends one execution step to the incident's step log.
func (db *Postgres) AppendStep(ctx context.Context, id string, step model.ActionStep) error {
	raw, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("failed to encode step: %w", err)
	}

	query := `
		UPDATE incidents
		SET steps = steps || $2::jsonb
		WHERE id = $1 AND status != 'resolved'
	`
	tag, err := db.Pool.Exec(ctx, query, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.mutationRefused(ctx, id)
	}
	return nil
}

// MarkPendingApproval moves the incident to pending_approval.
func (db *Postgres) MarkPendingApproval(ctx context.Context, id string) error {
	query := `
		UPDATE incidents
		SET status = $2
		WHERE id = $1 AND status != 'resolved'
	`
	tag, err := db.Pool.Exec(ctx, query, id, model.IncidentStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.mutationRefused(ctx, id)
	}
	return nil
}

// ResolveIncident closes the ledger row. The guard makes resolution a
// one-way transition: a second resolve returns ErrRecordResolved.
func (db *Postgres) ResolveIncident(ctx context.Context, id, resolution, verifyOutcome, verifyDetail string, resolvedAt time.Time) error {
	query := `
		UPDATE incidents
		SET status = 'resolved', resolution = $2, verify_outcome = $3,
			verify_detail = $4, resolved_at = $5
		WHERE id = $1 AND status != 'resolved'
	`
	tag, err := db.Pool.Exec(ctx, query, id, resolution, verifyOutcome, verifyDetail, resolvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.mutationRefused(ctx, id)
	}
	return nil
}

// mutationRefused distinguishes "row missing" from "row resolved" after a
// guarded UPDATE matched nothing.
func (db *Postgres) mutationRefused(ctx context.Context, id string) error {
	var status string
	err := db.Pool.QueryRow(ctx, `SELECT status FROM incidents WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIncidentNotFound, id)
	}
	if status == model.IncidentStatusResolved {
		return fmt.Errorf("%w: %s", ErrRecordResolved, id)
	}
	return fmt.Errorf("no incident found with id: %s", id)
}

const incidentColumns = `
	id, alert_name, severity, namespace, target, description,
	fingerprint, status, resolution, action, risk_tier, confidence,
	rationale, log_excerpt, steps, verify_outcome, verify_detail,
	created_at, resolved_at
`

// GetIncident returns one ledger row.
func (db *Postgres) GetIncident(ctx context.Context, id string) (*model.IncidentRecord, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`

	var rec model.IncidentRecord
	var steps []byte
	err := db.Pool.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.AlertName,
		&rec.Severity,
		&rec.Namespace,
		&rec.Target,
		&rec.Description,
		&rec.Fingerprint,
		&rec.Status,
		&rec.Resolution,
		&rec.Action,
		&rec.RiskTier,
		&rec.Confidence,
		&rec.Rationale,
		&rec.LogExcerpt,
		&steps,
		&rec.VerifyOutcome,
		&rec.VerifyDetail,
		&rec.CreatedAt,
		&rec.ResolvedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, fmt.Errorf("%w: %s", ErrIncidentNotFound, id)
		}
		return nil, err
	}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &rec.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode steps for %s: %w", id, err)
		}
	}
	return &rec, nil
}

// ListIncidents returns ledger rows newest first, honoring optional filters.
func (db *Postgres) ListIncidents(ctx context.Context, filter model.IncidentFilter) ([]model.IncidentRecord, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE 1=1`
	args := []any{}

	if filter.Namespace != "" {
		args = append(args, filter.Namespace)
		query += fmt.Sprintf(" AND namespace = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []model.IncidentRecord{}
	for rows.Next() {
		var rec model.IncidentRecord
		var steps []byte
		if err := rows.Scan(
			&rec.ID,
			&rec.AlertName,
			&rec.Severity,
			&rec.Namespace,
			&rec.Target,
			&rec.Description,
			&rec.Fingerprint,
			&rec.Status,
			&rec.Resolution,
			&rec.Action,
			&rec.RiskTier,
			&rec.Confidence,
			&rec.Rationale,
			&rec.LogExcerpt,
			&steps,
			&rec.VerifyOutcome,
			&rec.VerifyDetail,
			&rec.CreatedAt,
			&rec.ResolvedAt,
		); err != nil {
			return nil, err
		}
		if len(steps) > 0 {
			if err := json.Unmarshal(steps, &rec.Steps); err != nil {
				return nil, fmt.Errorf("failed to decode steps for %s: %w", rec.ID, err)
			}
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// HasRecentIncident reports whether any incident with the given fingerprint
// was created at or after since. Used to suppress duplicate deliveries.
func (db *Postgres) HasRecentIncident(ctx context.Context, fingerprint string, since time.Time) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}
	query := `
		SELECT EXISTS (
			SELECT 1 FROM incidents
			WHERE fingerprint = $1 AND created_at >= $2
		)
	`
	var exists bool
	err := db.Pool.QueryRow(ctx, query, fingerprint, since).Scan(&exists)
	return exists, err
}
