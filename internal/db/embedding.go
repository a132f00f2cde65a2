package db

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

func (db *Postgres) EnsureEmbeddingSchema(ctx context.Context) error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`
		CREATE TABLE IF NOT EXISTS incident_embeddings (
			incident_id TEXT PRIMARY KEY REFERENCES incidents(id),
			summary TEXT NOT NULL DEFAULT '',
			-- 768 = text-embedding-004 output dimension
			embedding vector(768) NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
	}
	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// InsertEmbedding stores the incident summary vector. Re-processing the same
// incident overwrites the old vector.
func (db *Postgres) InsertEmbedding(ctx context.Context, incidentID, summary, embModel string, vector []float32) error {
	query := `
		INSERT INTO incident_embeddings (incident_id, summary, embedding, model)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (incident_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model
	`
	_, err := db.Pool.Exec(ctx, query, incidentID, summary, pgvector.NewVector(vector), embModel)
	return err
}

// SearchSimilarIncidents returns the top-k resolved incidents nearest to the
// query vector by cosine distance. Score is 1 - distance, so 1.0 is an
// identical embedding.
func (db *Postgres) SearchSimilarIncidents(ctx context.Context, vector []float32, k int) ([]model.SimilarIncident, error) {
	query := `
		SELECT i.id, i.alert_name, i.action,
			COALESCE(NULLIF(i.verify_outcome, ''), i.resolution) AS outcome,
			1 - (e.embedding <=> $1) AS score
		FROM incident_embeddings e
		JOIN incidents i ON i.id = e.incident_id
		WHERE i.status = 'resolved'
		ORDER BY e.embedding <=> $1
		LIMIT $2
	`
	rows, err := db.Pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []model.SimilarIncident{}
	for rows.Next() {
		var s model.SimilarIncident
		if err := rows.Scan(&s.IncidentID, &s.AlertName, &s.Action, &s.Outcome, &s.Score); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
