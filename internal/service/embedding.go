package service

import (
	"context"
	"fmt"

	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

type EmbeddingRepo interface {
	InsertEmbedding(ctx context.Context, incidentID, summary, model string, vector []float32) error
	SearchSimilarIncidents(ctx context.Context, vector []float32, k int) ([]model.SimilarIncident, error)
}

type EmbeddingClient interface {
	EmbedText(ctx context.Context, text string) ([]float32, string, error)
}

// EmbeddingService is the context store: it embeds incident summaries for
// storage and runs the KNN lookup behind similarity search.
type EmbeddingService struct {
	repo   EmbeddingRepo
	client EmbeddingClient
}

func NewEmbeddingService(repo EmbeddingRepo, client EmbeddingClient) *EmbeddingService {
	return &EmbeddingService{repo: repo, client: client}
}

// StoreIncident embeds and persists a resolved incident's summary so future
// incidents can retrieve it.
func (s *EmbeddingService) StoreIncident(ctx context.Context, incidentID, summary string) error {
	if incidentID == "" || summary == "" {
		return fmt.Errorf("incident id and summary are required")
	}
	vector, embModel, err := s.client.EmbedText(ctx, summary)
	if err != nil {
		return err
	}
	return s.repo.InsertEmbedding(ctx, incidentID, summary, embModel, vector)
}

// TopKSimilar embeds the query text and returns the k nearest past
// incidents.
func (s *EmbeddingService) TopKSimilar(ctx context.Context, text string, k int) ([]model.SimilarIncident, error) {
	vector, _, err := s.client.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.repo.SearchSimilarIncidents(ctx, vector, k)
}
