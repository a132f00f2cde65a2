package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Shrinet82/ai-sre-agent/internal/catalog"
	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

type pipelineFixture struct {
	ledger    *fakeLedger
	approvals *fakeApprovals
	advisor   *fakeAdvisor
	actuator  *fakeActuator
	probe     *fakeProbe
	notifier  *fakeNotifier
	store     *fakeStore
	settings  *Settings
	pipeline  *PipelineService
	approval  *ApprovalService
}

func newPipelineFixture(t *testing.T, advisor *fakeAdvisor, probe *fakeProbe) *pipelineFixture {
	t.Helper()
	cat, err := catalog.New(nil)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	f := &pipelineFixture{
		ledger:    newFakeLedger(),
		approvals: newFakeApprovals(),
		advisor:   advisor,
		actuator:  newFakeActuator(),
		probe:     probe,
		notifier:  &fakeNotifier{},
		store:     &fakeStore{},
		settings:  NewSettings(0.8, true),
	}

	// Separate reader instance so assembly reads don't show up in the
	// dispatch call log.
	assembler := NewContextAssembler(newFakeActuator(), nil, &fakeSimilar{})
	engine := NewDecisionEngine(advisor, cat)
	dispatcher := NewDispatcher(f.actuator, TargetDefaults{})
	verifier := NewVerifier(probe, TargetDefaults{}, time.Millisecond, 50*time.Millisecond, 5*time.Millisecond)

	f.pipeline = NewPipelineService(
		f.ledger, f.approvals, assembler, engine, cat,
		dispatcher, verifier, f.settings, f.notifier, f.store,
		10*time.Minute,
	)
	f.approval = NewApprovalService(f.approvals, f.ledger, f.pipeline)
	return f
}

func firingRequest(fingerprint string) model.IncidentRequest {
	return model.IncidentRequest{
		AlertName:   "PodCrashLoopBackOff",
		Severity:    "critical",
		Namespace:   "payments",
		Target:      "api-7f9c",
		Description: "container restarting",
		Fingerprint: fingerprint,
		ReceivedAt:  time.Now().UTC(),
	}
}

// Happy path: confident medium-risk decision auto-executes, verifies healthy
// and resolves the ledger row.
func TestPipelineAutoRemediation(t *testing.T) {
	advisor := &fakeAdvisor{responses: []string{
		`{"action":"restart_deployment","params":{"namespace":"payments","deployment":"api"},"confidence":0.92,"rationale":"crash loop"}`,
	}}
	f := newPipelineFixture(t, advisor, &fakeProbe{healthy: []bool{true}})

	id, err := f.pipeline.ProcessAlert(context.Background(), firingRequest("fp-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := f.ledger.GetIncident(context.Background(), id)
	if err != nil {
		t.Fatalf("get incident: %v", err)
	}
	if rec.Status != model.IncidentStatusResolved {
		t.Fatalf("status = %s", rec.Status)
	}
	if rec.Resolution != model.ResolutionAutoRemediated {
		t.Fatalf("resolution = %s", rec.Resolution)
	}
	if rec.VerifyOutcome != model.VerifyHealthy {
		t.Fatalf("verify outcome = %s", rec.VerifyOutcome)
	}
	if len(rec.Steps) != 1 || !rec.Steps[0].Success {
		t.Fatalf("steps = %+v", rec.Steps)
	}
	if len(f.store.stored) != 1 {
		t.Fatal("expected embedding stored")
	}
	if len(f.notifier.opened) != 1 || len(f.notifier.outcomes) != 1 {
		t.Fatalf("notifications = %d opened, %d outcomes", len(f.notifier.opened), len(f.notifier.outcomes))
	}
	if body := f.notifier.outcomeBodies[0]; !strings.Contains(body, "payments/api-7f9c") {
		t.Fatalf("outcome body missing alert target: %q", body)
	}
}

// A failed actuation does not short-circuit: the attempt may still have
// changed cluster state, so the verifier polls the target either way.
func TestPipelineActuationFailureStillVerifies(t *testing.T) {
	advisor := &fakeAdvisor{responses: []string{
		`{"action":"restart_deployment","params":{"namespace":"payments","deployment":"api"},"confidence":0.92,"rationale":"crash loop"}`,
	}}
	probe := &fakeProbe{healthy: []bool{false}}
	f := newPipelineFixture(t, advisor, probe)
	f.actuator.errs["restart_deployment/payments/api"] = fmt.Errorf(`deployments "api" not found`)

	id, err := f.pipeline.ProcessAlert(context.Background(), firingRequest("fp-12"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, _ := f.ledger.GetIncident(context.Background(), id)
	if rec.Status != model.IncidentStatusResolved {
		t.Fatalf("status = %s", rec.Status)
	}
	if len(rec.Steps) != 1 || rec.Steps[0].Success {
		t.Fatalf("steps = %+v", rec.Steps)
	}
	if probe.observed == 0 {
		t.Fatal("verifier never polled after the failed action")
	}
	if rec.VerifyOutcome != model.VerifyUnhealthy {
		t.Fatalf("verify outcome = %s, want unhealthy", rec.VerifyOutcome)
	}
}

// High-risk decisions park for approval; approve resumes execution exactly
// once.
func TestPipelineGatedThenApproved(t *testing.T) {
	advisor := &fakeAdvisor{responses: []string{
		`{"action":"drain_node","params":{"node":"worker-1"},"confidence":0.95,"rationale":"node disk failing"}`,
	}}
	f := newPipelineFixture(t, advisor, &fakeProbe{healthy: []bool{true}})

	id, err := f.pipeline.ProcessAlert(context.Background(), firingRequest("fp-2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.actuator.callCount() != 0 {
		t.Fatalf("actuator called %d times before approval", f.actuator.callCount())
	}
	rec, _ := f.ledger.GetIncident(context.Background(), id)
	if rec.Status != model.IncidentStatusPending {
		t.Fatalf("status = %s, want pending_approval", rec.Status)
	}

	pending, err := f.approval.Pending(context.Background())
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, err = %v", pending, err)
	}

	resolved, err := f.approval.Approve(context.Background(), pending[0].ID, model.ApprovalVerdict{DecidedBy: "alice"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if resolved.Status != model.IncidentStatusResolved || resolved.Resolution != model.ResolutionApproved {
		t.Fatalf("record = %s/%s", resolved.Status, resolved.Resolution)
	}
	if f.actuator.callCount() == 0 {
		t.Fatal("actuator never called after approval")
	}

	// Second verdict must not re-execute.
	before := f.actuator.callCount()
	if _, err := f.approval.Approve(context.Background(), pending[0].ID, model.ApprovalVerdict{DecidedBy: "bob"}); err == nil {
		t.Fatal("expected already-processed error")
	}
	if f.actuator.callCount() != before {
		t.Fatal("second approve re-executed the action")
	}
}

func TestPipelineGatedThenRejected(t *testing.T) {
	advisor := &fakeAdvisor{responses: []string{
		`{"action":"delete_deployment","params":{"namespace":"payments","deployment":"api"},"confidence":0.9,"rationale":"broken rollout"}`,
	}}
	f := newPipelineFixture(t, advisor, &fakeProbe{healthy: []bool{true}})

	id, err := f.pipeline.ProcessAlert(context.Background(), firingRequest("fp-3"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, _ := f.approval.Pending(context.Background())
	if len(pending) != 1 {
		t.Fatalf("pending = %d", len(pending))
	}

	rec, err := f.approval.Reject(context.Background(), pending[0].ID, model.ApprovalVerdict{DecidedBy: "alice", Reason: "wrong target"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rec.ID != id || rec.Resolution != model.ResolutionRejected {
		t.Fatalf("record = %+v", rec)
	}
	if f.actuator.callCount() != 0 {
		t.Fatal("rejected action must never execute")
	}
}

// Advisor outage degrades to a manual_review decision, which is tier high
// and therefore parks for an operator instead of closing the incident.
func TestPipelineAdvisorOutageParksForApproval(t *testing.T) {
	advisor := &fakeAdvisor{err: fmt.Errorf("model overloaded")}
	f := newPipelineFixture(t, advisor, &fakeProbe{healthy: []bool{true}})

	id, err := f.pipeline.ProcessAlert(context.Background(), firingRequest("fp-4"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, _ := f.ledger.GetIncident(context.Background(), id)
	if rec.Status != model.IncidentStatusPending {
		t.Fatalf("status = %s, want pending_approval", rec.Status)
	}
	if rec.Action != catalog.ActionManualReview || rec.Confidence != 0.0 {
		t.Fatalf("decision = %s/%.2f", rec.Action, rec.Confidence)
	}
	if f.actuator.callCount() != 0 {
		t.Fatal("manual_review must not actuate")
	}

	pending, err := f.approval.Pending(context.Background())
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, err = %v", pending, err)
	}
	if pending[0].Action != catalog.ActionManualReview || pending[0].RiskTier != catalog.TierHigh {
		t.Fatalf("approval = %s/%s", pending[0].Action, pending[0].RiskTier)
	}

	// The operator handling the case by hand closes it with a reject.
	closed, err := f.approval.Reject(context.Background(), pending[0].ID,
		model.ApprovalVerdict{DecidedBy: "alice", Reason: "restarted manually"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if closed.Status != model.IncidentStatusResolved || closed.Resolution != model.ResolutionRejected {
		t.Fatalf("record = %s/%s", closed.Status, closed.Resolution)
	}
	if f.actuator.callCount() != 0 {
		t.Fatal("manual_review must never actuate")
	}
}

// Ledger-create failure is the pipeline's only hard failure.
func TestPipelinePersistenceFailureHardFails(t *testing.T) {
	advisor := &fakeAdvisor{responses: []string{`{"action":"delete_pod","confidence":0.9}`}}
	f := newPipelineFixture(t, advisor, &fakeProbe{healthy: []bool{true}})
	f.ledger.failCreate = true

	if _, err := f.pipeline.ProcessAlert(context.Background(), firingRequest("fp-5")); err == nil {
		t.Fatal("expected hard failure when ledger create fails")
	}
	if f.actuator.callCount() != 0 {
		t.Fatal("no action may run without a ledger row")
	}
}

func TestPipelineDuplicateDeliverySuppressed(t *testing.T) {
	advisor := &fakeAdvisor{responses: []string{
		`{"action":"restart_deployment","params":{"namespace":"payments","deployment":"api"},"confidence":0.92}`,
	}}
	f := newPipelineFixture(t, advisor, &fakeProbe{healthy: []bool{true}})

	req := firingRequest("fp-6")
	if _, err := f.pipeline.ProcessAlert(context.Background(), req); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	_, err := f.pipeline.ProcessAlert(context.Background(), req)
	if !errors.Is(err, ErrDuplicateDelivery) {
		t.Fatalf("err = %v, want duplicate delivery", err)
	}
}

func TestPipelineAutoActionDisabledGatesSafeDecision(t *testing.T) {
	advisor := &fakeAdvisor{responses: []string{
		`{"action":"delete_pod","confidence":0.99,"rationale":"stuck pod"}`,
	}}
	f := newPipelineFixture(t, advisor, &fakeProbe{healthy: []bool{true}})
	if err := f.settings.Update(0.8, false); err != nil {
		t.Fatalf("settings: %v", err)
	}

	id, err := f.pipeline.ProcessAlert(context.Background(), firingRequest("fp-7"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, _ := f.ledger.GetIncident(context.Background(), id)
	if rec.Status != model.IncidentStatusPending {
		t.Fatalf("status = %s, want pending_approval", rec.Status)
	}
	if f.actuator.callCount() != 0 {
		t.Fatal("auto-action disabled must gate everything")
	}
}

func TestProcessWebhookCounts(t *testing.T) {
	advisor := &fakeAdvisor{responses: []string{
		`{"action":"restart_deployment","params":{"namespace":"payments","deployment":"api"},"confidence":0.92}`,
	}}
	f := newPipelineFixture(t, advisor, &fakeProbe{healthy: []bool{true}})

	webhook := model.AlertmanagerWebhook{
		Status: "firing",
		Alerts: []model.Alert{
			{
				Status:      "firing",
				Labels:      map[string]string{"alertname": "PodCrashLoopBackOff", "severity": "critical", "namespace": "payments", "pod": "api-7f9c"},
				Fingerprint: "fp-8",
			},
			{
				// no alertname -> malformed
				Status:      "firing",
				Labels:      map[string]string{"severity": "warning"},
				Fingerprint: "fp-9",
			},
			{
				// resolved alerts are skipped entirely
				Status:      "resolved",
				Labels:      map[string]string{"alertname": "HighMemoryUsage"},
				Fingerprint: "fp-10",
			},
		},
	}

	resp, err := f.pipeline.ProcessWebhook(context.Background(), webhook)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Processed != 1 || resp.Malformed != 1 || resp.Duplicates != 0 {
		t.Fatalf("resp = %+v", resp)
	}
	if len(resp.Incidents) != 1 {
		t.Fatalf("incidents = %v", resp.Incidents)
	}
}

func TestApprovalExpirySweep(t *testing.T) {
	advisor := &fakeAdvisor{responses: []string{
		`{"action":"cordon_node","params":{"node":"worker-1"},"confidence":0.9,"rationale":"flaky disk"}`,
	}}
	f := newPipelineFixture(t, advisor, &fakeProbe{healthy: []bool{true}})

	id, err := f.pipeline.ProcessAlert(context.Background(), firingRequest("fp-11"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Age the pending approval past the TTL.
	pending, _ := f.approval.Pending(context.Background())
	f.approvals.aps[pending[0].ID].CreatedAt = time.Now().Add(-time.Hour)

	n, err := f.approval.ExpireStale(context.Background(), 30*time.Minute)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d, want 1", n)
	}

	rec, _ := f.ledger.GetIncident(context.Background(), id)
	if rec.Resolution != model.ResolutionExpired {
		t.Fatalf("resolution = %s", rec.Resolution)
	}
	if f.actuator.callCount() != 0 {
		t.Fatal("expired approval must never execute")
	}

	// A verdict after expiry is already-processed.
	if _, err := f.approval.Approve(context.Background(), pending[0].ID, model.ApprovalVerdict{DecidedBy: "alice"}); err == nil {
		t.Fatal("expected already-processed error after expiry")
	}
}
