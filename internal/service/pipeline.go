package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Shrinet82/ai-sre-agent/internal/catalog"
	"github.com/Shrinet82/ai-sre-agent/internal/metrics"
	"github.com/Shrinet82/ai-sre-agent/internal/model"
	"github.com/Shrinet82/ai-sre-agent/internal/template"
)

// ErrDuplicateDelivery marks an alert suppressed by the idempotency window.
var ErrDuplicateDelivery = errors.New("duplicate delivery")

// LedgerRepo is the incident ledger as the pipeline sees it.
type LedgerRepo interface {
	CreateIncident(ctx context.Context, rec model.IncidentRecord) error
	UpdateDecision(ctx context.Context, id, action, riskTier string, confidence float64, rationale, logExcerpt string) error
	AppendStep(ctx context.Context, id string, step model.ActionStep) error
	MarkPendingApproval(ctx context.Context, id string) error
	ResolveIncident(ctx context.Context, id, resolution, verifyOutcome, verifyDetail string, resolvedAt time.Time) error
	GetIncident(ctx context.Context, id string) (*model.IncidentRecord, error)
	HasRecentIncident(ctx context.Context, fingerprint string, since time.Time) (bool, error)
}

// ApprovalWriter is the slice of the approval store the pipeline needs to
// park a gated decision.
type ApprovalWriter interface {
	CreateApproval(ctx context.Context, ap model.PendingApproval) error
	CountPendingApprovals(ctx context.Context) (int, error)
}

// Notifier delivers incident lifecycle messages. All sends are best effort.
type Notifier interface {
	IsConfigured() bool
	SendIncidentOpened(rec model.IncidentRecord) error
	SendApprovalRequested(ap model.PendingApproval, fingerprint string) error
	SendOutcome(rec model.IncidentRecord, body string) error
}

// ContextStoreWriter persists resolved incidents for future similarity
// lookups.
type ContextStoreWriter interface {
	StoreIncident(ctx context.Context, incidentID, summary string) error
}

const outcomeBodyTemplate = "{{alert.alertname}} on {{alert.namespace}}/{{alert.target}}: " +
	"action {{incident.action}} finished with {{incident.verify_outcome}} " +
	"(resolution: {{incident.resolution}})\n{{incident.rationale}}"

// PipelineService drives one alert from ingress to a resolved ledger row.
// Creating the ledger row is the only hard failure; everything after it
// degrades and continues.
type PipelineService struct {
	ledger    LedgerRepo
	approvals ApprovalWriter
	assembler *ContextAssembler
	engine    *DecisionEngine
	catalog   *catalog.Catalog
	dispatch  *Dispatcher
	verifier  *Verifier
	settings  *Settings
	notifier  Notifier
	store     ContextStoreWriter

	dedupeWindow time.Duration
}

func NewPipelineService(
	ledger LedgerRepo,
	approvals ApprovalWriter,
	assembler *ContextAssembler,
	engine *DecisionEngine,
	cat *catalog.Catalog,
	dispatch *Dispatcher,
	verifier *Verifier,
	settings *Settings,
	notifier Notifier,
	store ContextStoreWriter,
	dedupeWindow time.Duration,
) *PipelineService {
	return &PipelineService{
		ledger:       ledger,
		approvals:    approvals,
		assembler:    assembler,
		engine:       engine,
		catalog:      cat,
		dispatch:     dispatch,
		verifier:     verifier,
		settings:     settings,
		notifier:     notifier,
		store:        store,
		dedupeWindow: dedupeWindow,
	}
}

// ProcessWebhook fans an Alertmanager delivery out into per-alert pipeline
// runs. Only firing alerts enter the pipeline.
func (s *PipelineService) ProcessWebhook(ctx context.Context, webhook model.AlertmanagerWebhook) (model.WebhookResponse, error) {
	resp := model.WebhookResponse{Status: "ok"}

	for _, alert := range webhook.Alerts {
		if alert.Status != "firing" {
			continue
		}

		req, err := model.IncidentRequestFromAlert(alert, time.Now().UTC())
		if err != nil {
			resp.Malformed++
			log.Printf("pipeline: rejecting malformed alert fingerprint=%s: %v", alert.Fingerprint, err)
			continue
		}

		incidentID, err := s.ProcessAlert(ctx, req)
		switch {
		case errors.Is(err, ErrDuplicateDelivery):
			resp.Duplicates++
		case err != nil:
			return resp, err
		default:
			resp.Processed++
			resp.Incidents = append(resp.Incidents, incidentID)
		}
	}
	return resp, nil
}

// ProcessAlert runs the full pipeline for one alert and returns the new
// incident id. An error means the ledger row could not be created.
func (s *PipelineService) ProcessAlert(ctx context.Context, req model.IncidentRequest) (string, error) {
	dup, err := s.ledger.HasRecentIncident(ctx, req.Fingerprint, time.Now().Add(-s.dedupeWindow))
	if err != nil {
		log.Printf("pipeline: dedupe check failed, treating as new: %v", err)
	}
	if dup {
		log.Printf("pipeline: suppressing duplicate delivery fingerprint=%s", req.Fingerprint)
		return "", fmt.Errorf("%w: %s", ErrDuplicateDelivery, req.Fingerprint)
	}

	rec := model.IncidentRecord{
		ID:          uuid.NewString(),
		AlertName:   req.AlertName,
		Severity:    req.Severity,
		Namespace:   req.Namespace,
		Target:      req.Target,
		Description: req.Description,
		Fingerprint: req.Fingerprint,
		Status:      model.IncidentStatusNew,
		CreatedAt:   req.ReceivedAt,
	}
	if err := s.ledger.CreateIncident(ctx, rec); err != nil {
		// The ledger is the system of record: without the row we refuse
		// to act on the alert at all.
		return "", fmt.Errorf("failed to create incident record: %w", err)
	}

	metrics.IncidentsTotal.WithLabelValues(req.Severity, req.AlertName).Inc()
	log.Printf("pipeline: incident created id=%s alert=%s severity=%s", rec.ID, req.AlertName, req.Severity)

	if s.notifier != nil && s.notifier.IsConfigured() {
		if err := s.notifier.SendIncidentOpened(rec); err != nil {
			log.Printf("pipeline: opened notification failed, continuing: %v", err)
		}
	}

	dctx := s.assembler.Assemble(ctx, req)
	decision := s.engine.Decide(ctx, dctx)
	tier := s.catalog.Tier(decision.Action)
	metrics.DecisionConfidence.Observe(decision.Confidence)

	if err := s.ledger.UpdateDecision(ctx, rec.ID, decision.Action, tier, decision.Confidence, decision.Rationale, dctx.LogExcerpt); err != nil {
		log.Printf("pipeline: failed to persist decision for %s, continuing: %v", rec.ID, err)
	}
	log.Printf("pipeline: decision id=%s action=%s tier=%s confidence=%.2f",
		rec.ID, decision.Action, tier, decision.Confidence)

	// manual_review is tier high, so it always parks: the pending approval
	// is the human-action queue entry and an operator verdict closes it.
	threshold, autoAction := s.settings.Snapshot()
	if RequireApproval(tier, decision.Confidence, threshold, autoAction) {
		s.parkForApproval(ctx, rec, decision, tier)
		return rec.ID, nil
	}

	s.executeAndResolve(ctx, rec.ID, req, decision, model.ResolutionAutoRemediated)
	return rec.ID, nil
}

func (s *PipelineService) parkForApproval(ctx context.Context, rec model.IncidentRecord, decision model.Decision, tier string) {
	ap := model.PendingApproval{
		ID:         uuid.NewString(),
		IncidentID: rec.ID,
		Action:     decision.Action,
		Params:     decision.Params,
		RiskTier:   tier,
		Confidence: decision.Confidence,
		Rationale:  decision.Rationale,
		Status:     model.ApprovalStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.approvals.CreateApproval(ctx, ap); err != nil {
		log.Printf("pipeline: failed to park approval for %s, resolving as manual review: %v", rec.ID, err)
		s.resolveAndPublish(ctx, rec.ID, model.ResolutionManualReview, "", "approval store unavailable")
		return
	}
	if err := s.ledger.MarkPendingApproval(ctx, rec.ID); err != nil {
		log.Printf("pipeline: failed to mark incident %s pending: %v", rec.ID, err)
	}
	s.refreshPendingGauge(ctx)
	log.Printf("pipeline: approval required id=%s approval=%s action=%s", rec.ID, ap.ID, ap.Action)

	if s.notifier != nil && s.notifier.IsConfigured() {
		if err := s.notifier.SendApprovalRequested(ap, rec.Fingerprint); err != nil {
			log.Printf("pipeline: approval notification failed, continuing: %v", err)
		}
	}
}

// executeAndResolve dispatches the action, verifies mutations, and closes
// the ledger row. Used both for auto-approved decisions and for operator
// approvals resuming execution.
func (s *PipelineService) executeAndResolve(ctx context.Context, incidentID string, req model.IncidentRequest, decision model.Decision, resolution string) {
	step := s.dispatch.Execute(ctx, decision.Action, decision.Params, req)
	metrics.RecordAction(decision.Action, step.Success)
	if err := s.ledger.AppendStep(ctx, incidentID, step); err != nil {
		log.Printf("pipeline: failed to record step for %s: %v", incidentID, err)
	}

	if !step.Success {
		log.Printf("pipeline: action failed id=%s action=%s err=%s", incidentID, decision.Action, step.Error)
	}

	outcome, detail := "", ""
	switch {
	case s.catalog.Mutating(decision.Action):
		// A failed attempt may still have changed cluster state, so the
		// target is verified either way.
		outcome, detail = s.verifier.Verify(ctx, decision.Action, decision.Params, req)
		log.Printf("pipeline: verification id=%s outcome=%s detail=%s", incidentID, outcome, detail)
	case !step.Success:
		outcome, detail = model.VerifyUnknown, "action failed: "+step.Error
	default:
		detail = step.Output
	}

	s.resolveAndPublish(ctx, incidentID, resolution, outcome, detail)
}

// resolveAndPublish closes the incident, sends the outcome notification and
// stores the embedding. Resolution is one-way: a concurrent resolver losing
// the race just logs it.
func (s *PipelineService) resolveAndPublish(ctx context.Context, incidentID, resolution, verifyOutcome, verifyDetail string) {
	if err := s.ledger.ResolveIncident(ctx, incidentID, resolution, verifyOutcome, verifyDetail, time.Now().UTC()); err != nil {
		log.Printf("pipeline: failed to resolve incident %s: %v", incidentID, err)
		return
	}

	rec, err := s.ledger.GetIncident(ctx, incidentID)
	if err != nil {
		log.Printf("pipeline: cannot load resolved incident %s: %v", incidentID, err)
		return
	}

	if s.notifier != nil && s.notifier.IsConfigured() {
		alert := template.AlertDataFromRequest(incidentRequestFromRecord(*rec))
		body := template.RenderBody(outcomeBodyTemplate, ptr(template.IncidentDataFromRecord(*rec)), &alert)
		if err := s.notifier.SendOutcome(*rec, body); err != nil {
			log.Printf("pipeline: outcome notification failed: %v", err)
		}
	}

	if s.store != nil {
		summary := fmt.Sprintf("%s [%s] %s/%s: %s | action=%s outcome=%s",
			rec.AlertName, rec.Severity, rec.Namespace, rec.Target,
			rec.Description, rec.Action, rec.VerifyOutcome)
		if err := s.store.StoreIncident(ctx, rec.ID, summary); err != nil {
			log.Printf("pipeline: embedding store failed for %s: %v", rec.ID, err)
		}
	}
}

func (s *PipelineService) refreshPendingGauge(ctx context.Context) {
	n, err := s.approvals.CountPendingApprovals(ctx)
	if err != nil {
		return
	}
	metrics.PendingApprovals.Set(float64(n))
}

// incidentRequestFromRecord rebuilds the ingress snapshot a ledger row was
// created from, for resuming execution and rendering notifications.
func incidentRequestFromRecord(rec model.IncidentRecord) model.IncidentRequest {
	return model.IncidentRequest{
		AlertName:   rec.AlertName,
		Severity:    rec.Severity,
		Namespace:   rec.Namespace,
		Target:      rec.Target,
		Description: rec.Description,
		Fingerprint: rec.Fingerprint,
		ReceivedAt:  rec.CreatedAt,
	}
}

func ptr[T any](v T) *T {
	return &v
}
