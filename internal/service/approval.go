package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Shrinet82/ai-sre-agent/internal/metrics"
	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

// ApprovalRepo is the approval store. ClaimApproval must be atomic: exactly
// one caller may move an approval out of pending.
type ApprovalRepo interface {
	GetApproval(ctx context.Context, id string) (*model.PendingApproval, error)
	ListPendingApprovals(ctx context.Context) ([]model.PendingApproval, error)
	ClaimApproval(ctx context.Context, id, newStatus, decidedBy string, decidedAt time.Time) (*model.PendingApproval, error)
	ExpireStaleApprovals(ctx context.Context, cutoff, decidedAt time.Time) ([]model.PendingApproval, error)
	CountPendingApprovals(ctx context.Context) (int, error)
}

// ApprovalService applies operator verdicts to gated decisions. An approve
// resumes the pipeline synchronously; the caller gets the final record back.
type ApprovalService struct {
	repo     ApprovalRepo
	ledger   LedgerRepo
	pipeline *PipelineService
}

func NewApprovalService(repo ApprovalRepo, ledger LedgerRepo, pipeline *PipelineService) *ApprovalService {
	return &ApprovalService{repo: repo, ledger: ledger, pipeline: pipeline}
}

func (s *ApprovalService) Pending(ctx context.Context) ([]model.PendingApproval, error) {
	return s.repo.ListPendingApprovals(ctx)
}

func (s *ApprovalService) Get(ctx context.Context, id string) (*model.PendingApproval, error) {
	return s.repo.GetApproval(ctx, id)
}

// Approve claims the approval and resumes execution. A second approve (or a
// reject racing an approve) surfaces the store's already-processed error and
// never re-executes.
func (s *ApprovalService) Approve(ctx context.Context, id string, verdict model.ApprovalVerdict) (*model.IncidentRecord, error) {
	ap, err := s.repo.ClaimApproval(ctx, id, model.ApprovalStatusApproved, verdict.DecidedBy, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.refreshGauge(ctx)
	log.Printf("approval: approved id=%s incident=%s action=%s by=%s", ap.ID, ap.IncidentID, ap.Action, verdict.DecidedBy)

	req, err := s.requestFromLedger(ctx, ap.IncidentID)
	if err != nil {
		return nil, err
	}

	decision := model.Decision{
		Action:     ap.Action,
		Params:     ap.Params,
		Confidence: ap.Confidence,
		Rationale:  ap.Rationale,
	}
	s.pipeline.executeAndResolve(ctx, ap.IncidentID, req, decision, model.ResolutionApproved)

	return s.ledger.GetIncident(ctx, ap.IncidentID)
}

// Reject claims the approval and closes the incident without executing.
func (s *ApprovalService) Reject(ctx context.Context, id string, verdict model.ApprovalVerdict) (*model.IncidentRecord, error) {
	ap, err := s.repo.ClaimApproval(ctx, id, model.ApprovalStatusRejected, verdict.DecidedBy, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.refreshGauge(ctx)
	log.Printf("approval: rejected id=%s incident=%s by=%s", ap.ID, ap.IncidentID, verdict.DecidedBy)

	detail := "rejected by " + verdict.DecidedBy
	if verdict.Reason != "" {
		detail += ": " + verdict.Reason
	}
	s.pipeline.resolveAndPublish(ctx, ap.IncidentID, model.ResolutionRejected, "", detail)

	return s.ledger.GetIncident(ctx, ap.IncidentID)
}

// ExpireStale sweeps pending approvals older than ttl into expired and
// closes their incidents. Wired to a ticker only when APPROVAL_TTL is set.
func (s *ApprovalService) ExpireStale(ctx context.Context, ttl time.Duration) (int, error) {
	now := time.Now().UTC()
	expired, err := s.repo.ExpireStaleApprovals(ctx, now.Add(-ttl), now)
	if err != nil {
		return 0, err
	}
	for _, ap := range expired {
		log.Printf("approval: expired id=%s incident=%s after %s", ap.ID, ap.IncidentID, ttl)
		s.pipeline.resolveAndPublish(ctx, ap.IncidentID, model.ResolutionExpired, "",
			fmt.Sprintf("approval expired after %s", ttl))
	}
	if len(expired) > 0 {
		s.refreshGauge(ctx)
	}
	return len(expired), nil
}

func (s *ApprovalService) requestFromLedger(ctx context.Context, incidentID string) (model.IncidentRequest, error) {
	rec, err := s.ledger.GetIncident(ctx, incidentID)
	if err != nil {
		return model.IncidentRequest{}, err
	}
	return incidentRequestFromRecord(*rec), nil
}

func (s *ApprovalService) refreshGauge(ctx context.Context) {
	n, err := s.repo.CountPendingApprovals(ctx)
	if err != nil {
		return
	}
	metrics.PendingApprovals.Set(float64(n))
}
