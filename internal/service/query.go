package service

import (
	"context"

	"github.com/Shrinet82/ai-sre-agent/internal/client"
	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

// ClusterReader is the read-only cluster view for the investigation surface.
// It deliberately excludes every mutating capability: code holding a
// QueryService cannot actuate anything.
type ClusterReader interface {
	GetClusterSummary(ctx context.Context) (*client.ClusterSummary, error)
	ListNamespacePods(ctx context.Context, namespace string) ([]client.PodInfo, error)
}

// IncidentReader is the read side of the ledger.
type IncidentReader interface {
	GetIncident(ctx context.Context, id string) (*model.IncidentRecord, error)
	ListIncidents(ctx context.Context, filter model.IncidentFilter) ([]model.IncidentRecord, error)
}

type QueryService struct {
	cluster ClusterReader
	ledger  IncidentReader
}

func NewQueryService(cluster ClusterReader, ledger IncidentReader) *QueryService {
	return &QueryService{cluster: cluster, ledger: ledger}
}

func (s *QueryService) ClusterSummary(ctx context.Context) (*client.ClusterSummary, error) {
	return s.cluster.GetClusterSummary(ctx)
}

func (s *QueryService) NamespacePods(ctx context.Context, namespace string) ([]client.PodInfo, error) {
	return s.cluster.ListNamespacePods(ctx, namespace)
}

func (s *QueryService) Incident(ctx context.Context, id string) (*model.IncidentRecord, error) {
	return s.ledger.GetIncident(ctx, id)
}

func (s *QueryService) Incidents(ctx context.Context, filter model.IncidentFilter) ([]model.IncidentRecord, error) {
	return s.ledger.ListIncidents(ctx, filter)
}
