package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Shrinet82/ai-sre-agent/internal/db"
	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

// ---------------------------------------------------------------------------
// ledger fake
// ---------------------------------------------------------------------------

type fakeLedger struct {
	mu         sync.Mutex
	recs       map[string]*model.IncidentRecord
	failCreate bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{recs: make(map[string]*model.IncidentRecord)}
}

func (f *fakeLedger) CreateIncident(_ context.Context, rec model.IncidentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return fmt.Errorf("postgres down")
	}
	copied := rec
	f.recs[rec.ID] = &copied
	return nil
}

func (f *fakeLedger) get(id string) (*model.IncidentRecord, error) {
	rec, ok := f.recs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", db.ErrIncidentNotFound, id)
	}
	return rec, nil
}

func (f *fakeLedger) UpdateDecision(_ context.Context, id, action, riskTier string, confidence float64, rationale, logExcerpt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, err := f.get(id)
	if err != nil {
		return err
	}
	if rec.Status == model.IncidentStatusResolved {
		return fmt.Errorf("%w: %s", db.ErrRecordResolved, id)
	}
	rec.Action, rec.RiskTier, rec.Confidence = action, riskTier, confidence
	rec.Rationale, rec.LogExcerpt = rationale, logExcerpt
	return nil
}

func (f *fakeLedger) AppendStep(_ context.Context, id string, step model.ActionStep) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, err := f.get(id)
	if err != nil {
		return err
	}
	if rec.Status == model.IncidentStatusResolved {
		return fmt.Errorf("%w: %s", db.ErrRecordResolved, id)
	}
	rec.Steps = append(rec.Steps, step)
	return nil
}

func (f *fakeLedger) MarkPendingApproval(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, err := f.get(id)
	if err != nil {
		return err
	}
	if rec.Status == model.IncidentStatusResolved {
		return fmt.Errorf("%w: %s", db.ErrRecordResolved, id)
	}
	rec.Status = model.IncidentStatusPending
	return nil
}

func (f *fakeLedger) ResolveIncident(_ context.Context, id, resolution, verifyOutcome, verifyDetail string, resolvedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, err := f.get(id)
	if err != nil {
		return err
	}
	if rec.Status == model.IncidentStatusResolved {
		return fmt.Errorf("%w: %s", db.ErrRecordResolved, id)
	}
	rec.Status = model.IncidentStatusResolved
	rec.Resolution = resolution
	rec.VerifyOutcome = verifyOutcome
	rec.VerifyDetail = verifyDetail
	rec.ResolvedAt = &resolvedAt
	return nil
}

func (f *fakeLedger) GetIncident(_ context.Context, id string) (*model.IncidentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, err := f.get(id)
	if err != nil {
		return nil, err
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeLedger) ListIncidents(_ context.Context, filter model.IncidentFilter) ([]model.IncidentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.IncidentRecord
	for _, rec := range f.recs {
		if filter.Namespace != "" && rec.Namespace != filter.Namespace {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeLedger) HasRecentIncident(_ context.Context, fingerprint string, since time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.recs {
		if rec.Fingerprint == fingerprint && !rec.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// ---------------------------------------------------------------------------
// approval store fake
// ---------------------------------------------------------------------------

type fakeApprovals struct {
	mu  sync.Mutex
	aps map[string]*model.PendingApproval
}

func newFakeApprovals() *fakeApprovals {
	return &fakeApprovals{aps: make(map[string]*model.PendingApproval)}
}

func (f *fakeApprovals) CreateApproval(_ context.Context, ap model.PendingApproval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := ap
	f.aps[ap.ID] = &copied
	return nil
}

func (f *fakeApprovals) GetApproval(_ context.Context, id string) (*model.PendingApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ap, ok := f.aps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", db.ErrApprovalNotFound, id)
	}
	copied := *ap
	return &copied, nil
}

func (f *fakeApprovals) ListPendingApprovals(_ context.Context) ([]model.PendingApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.PendingApproval{}
	for _, ap := range f.aps {
		if ap.Status == model.ApprovalStatusPending {
			out = append(out, *ap)
		}
	}
	return out, nil
}

func (f *fakeApprovals) ClaimApproval(_ context.Context, id, newStatus, decidedBy string, decidedAt time.Time) (*model.PendingApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ap, ok := f.aps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", db.ErrApprovalNotFound, id)
	}
	if ap.Status != model.ApprovalStatusPending {
		return nil, fmt.Errorf("%w: %s", db.ErrAlreadyProcessed, id)
	}
	ap.Status = newStatus
	ap.DecidedBy = decidedBy
	ap.DecidedAt = &decidedAt
	copied := *ap
	return &copied, nil
}

func (f *fakeApprovals) ExpireStaleApprovals(_ context.Context, cutoff, decidedAt time.Time) ([]model.PendingApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PendingApproval
	for _, ap := range f.aps {
		if ap.Status == model.ApprovalStatusPending && ap.CreatedAt.Before(cutoff) {
			ap.Status = model.ApprovalStatusExpired
			ap.DecidedAt = &decidedAt
			out = append(out, *ap)
		}
	}
	return out, nil
}

func (f *fakeApprovals) CountPendingApprovals(_ context.Context) (int, error) {
	pending, _ := f.ListPendingApprovals(context.Background())
	return len(pending), nil
}

// ---------------------------------------------------------------------------
// advisor / actuator / probe / notifier fakes
// ---------------------------------------------------------------------------

type fakeAdvisor struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
}

func (f *fakeAdvisor) Advise(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

type fakeActuator struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
}

func newFakeActuator() *fakeActuator {
	return &fakeActuator{errs: make(map[string]error)}
}

func (f *fakeActuator) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.errs[call]
}

func (f *fakeActuator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeActuator) RestartDeployment(_ context.Context, ns, name string) error {
	return f.record("restart_deployment/" + ns + "/" + name)
}
func (f *fakeActuator) ScaleDeployment(_ context.Context, ns, name string, replicas int32) error {
	return f.record(fmt.Sprintf("scale_deployment/%s/%s/%d", ns, name, replicas))
}
func (f *fakeActuator) DeletePod(_ context.Context, ns, name string) error {
	return f.record("delete_pod/" + ns + "/" + name)
}
func (f *fakeActuator) DeleteDeployment(_ context.Context, ns, name string) error {
	return f.record("delete_deployment/" + ns + "/" + name)
}
func (f *fakeActuator) CordonNode(_ context.Context, name string) error {
	return f.record("cordon_node/" + name)
}
func (f *fakeActuator) UncordonNode(_ context.Context, name string) error {
	return f.record("uncordon_node/" + name)
}
func (f *fakeActuator) DrainNode(_ context.Context, name string) error {
	return f.record("drain_node/" + name)
}
func (f *fakeActuator) RollbackDeployment(_ context.Context, ns, name string) error {
	return f.record("rollback_deployment/" + ns + "/" + name)
}
func (f *fakeActuator) GetDeploymentStatus(_ context.Context, ns, name string) (string, error) {
	return "3/3 ready", f.record("get_deployment_status/" + ns + "/" + name)
}
func (f *fakeActuator) GetPodEvents(_ context.Context, ns, pod string, _ int) ([]string, error) {
	return []string{"Warning BackOff: restarting container"}, f.record("get_pod_events/" + ns + "/" + pod)
}
func (f *fakeActuator) CheckNodeHealth(_ context.Context, name string) (string, error) {
	return "Ready=True", f.record("check_node_health/" + name)
}
func (f *fakeActuator) PodLogs(_ context.Context, ns, pod string, _ int64) (string, error) {
	return "panic: connection refused", f.record("pod_logs/" + ns + "/" + pod)
}

type fakeProbe struct {
	mu       sync.Mutex
	healthy  []bool // consumed per observation, last value repeats
	err      error
	observed int
}

func (f *fakeProbe) next() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.observed
	f.observed++
	if idx >= len(f.healthy) {
		idx = len(f.healthy) - 1
	}
	return f.healthy[idx]
}

func (f *fakeProbe) DeploymentHealth(context.Context, string, string) (int32, int32, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	if f.next() {
		return 3, 3, nil
	}
	return 1, 3, nil
}

func (f *fakeProbe) PodPhase(context.Context, string, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.next() {
		return "Running", nil
	}
	return "CrashLoopBackOff", nil
}

func (f *fakeProbe) NodeReady(context.Context, string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.next(), nil
}

type fakeNotifier struct {
	mu            sync.Mutex
	opened        []string
	gated         []string
	outcomes      []string
	outcomeBodies []string
}

func (f *fakeNotifier) IsConfigured() bool { return true }

func (f *fakeNotifier) SendIncidentOpened(rec model.IncidentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, rec.ID)
	return nil
}

func (f *fakeNotifier) SendApprovalRequested(ap model.PendingApproval, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gated = append(f.gated, ap.ID)
	return nil
}

func (f *fakeNotifier) SendOutcome(rec model.IncidentRecord, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, rec.ID)
	f.outcomeBodies = append(f.outcomeBodies, body)
	return nil
}

type fakeSimilar struct {
	results []model.SimilarIncident
	err     error
}

func (f *fakeSimilar) TopKSimilar(context.Context, string, int) ([]model.SimilarIncident, error) {
	return f.results, f.err
}

type fakeStore struct {
	mu     sync.Mutex
	stored []string
}

func (f *fakeStore) StoreIncident(_ context.Context, incidentID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, incidentID)
	return nil
}
