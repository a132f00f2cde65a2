package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Shrinet82/ai-sre-agent/internal/catalog"
	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

// ErrUnsupportedAction is recorded when a decision names an action the
// dispatcher cannot map to an actuator call.
var ErrUnsupportedAction = errors.New("unsupported action")

// Replica counts are clamped to this range regardless of what the advisor
// asked for.
const (
	minReplicas = 1
	maxReplicas = 10
)

// Actuator is the full cluster capability. Only the dispatcher holds it.
type Actuator interface {
	RestartDeployment(ctx context.Context, namespace, name string) error
	ScaleDeployment(ctx context.Context, namespace, name string, replicas int32) error
	DeletePod(ctx context.Context, namespace, name string) error
	DeleteDeployment(ctx context.Context, namespace, name string) error
	CordonNode(ctx context.Context, name string) error
	UncordonNode(ctx context.Context, name string) error
	DrainNode(ctx context.Context, name string) error
	RollbackDeployment(ctx context.Context, namespace, name string) error
	GetDeploymentStatus(ctx context.Context, namespace, name string) (string, error)
	GetPodEvents(ctx context.Context, namespace, pod string, limit int) ([]string, error)
	CheckNodeHealth(ctx context.Context, name string) (string, error)
}

// TargetDefaults fills in the namespace and deployment when neither the
// advisor params nor the alert carry one. Configured via
// TARGET_NAMESPACE/TARGET_DEPLOYMENT.
type TargetDefaults struct {
	Namespace  string
	Deployment string
}

// actionTarget - the resource one action operates on. kind/namespace/name is
// also the serialization key.
type actionTarget struct {
	kind      string // deployment, pod, node
	namespace string
	name      string
}

func (t actionTarget) key() string {
	return t.kind + "/" + t.namespace + "/" + t.name
}

// resolveTarget maps a decision onto a concrete resource, preferring advisor
// params, then the alert's own target, then the configured defaults.
func resolveTarget(action string, params model.Params, req model.IncidentRequest, defaults TargetDefaults) (actionTarget, error) {
	namespace := params.String("namespace")
	if namespace == "" {
		namespace = req.Namespace
	}
	if namespace == "" {
		namespace = defaults.Namespace
	}

	switch action {
	case catalog.ActionRestartDeployment, catalog.ActionScaleDeployment,
		catalog.ActionDeleteDeployment, catalog.ActionRollbackDeployment,
		catalog.ActionGetDeploymentStatus:
		name := params.String("deployment")
		if name == "" {
			// A pod target like "api-7f9c86d5c-x2lkj" usually belongs to
			// deployment "api", but that cannot be guessed safely; only an
			// explicit default stands in.
			name = defaults.Deployment
		}
		if name == "" {
			return actionTarget{}, fmt.Errorf("action %s requires a deployment param", action)
		}
		if namespace == "" {
			return actionTarget{}, fmt.Errorf("action %s requires a namespace", action)
		}
		return actionTarget{kind: "deployment", namespace: namespace, name: name}, nil

	case catalog.ActionDeletePod, catalog.ActionGetPodEvents:
		name := params.String("pod")
		if name == "" {
			name = req.Target
		}
		if name == "" {
			return actionTarget{}, fmt.Errorf("action %s requires a pod", action)
		}
		if namespace == "" {
			return actionTarget{}, fmt.Errorf("action %s requires a namespace", action)
		}
		return actionTarget{kind: "pod", namespace: namespace, name: name}, nil

	case catalog.ActionCordonNode, catalog.ActionUncordonNode,
		catalog.ActionDrainNode, catalog.ActionCheckNodeHealth:
		name := params.String("node")
		if name == "" {
			name = req.Target
		}
		if name == "" {
			return actionTarget{}, fmt.Errorf("action %s requires a node", action)
		}
		return actionTarget{kind: "node", name: name}, nil
	}

	return actionTarget{}, fmt.Errorf("%w: %s", ErrUnsupportedAction, action)
}

// Dispatcher executes exactly one actuator call per decision, serializing
// actions that touch the same resource.
type Dispatcher struct {
	actuator Actuator
	defaults TargetDefaults

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewDispatcher(actuator Actuator, defaults TargetDefaults) *Dispatcher {
	return &Dispatcher{
		actuator: actuator,
		defaults: defaults,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (d *Dispatcher) lockFor(key string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[key] = lock
	}
	return lock
}

// Execute runs the action and returns its step-log entry. Failures are
// captured in the step, never returned: the pipeline records them and moves
// on.
func (d *Dispatcher) Execute(ctx context.Context, action string, params model.Params, req model.IncidentRequest) model.ActionStep {
	step := model.ActionStep{
		Action:     action,
		Params:     params,
		ExecutedAt: time.Now().UTC(),
	}

	target, err := resolveTarget(action, params, req, d.defaults)
	if err != nil {
		step.Error = err.Error()
		return step
	}

	lock := d.lockFor(target.key())
	lock.Lock()
	defer lock.Unlock()

	output, err := d.run(ctx, action, params, target)
	if err != nil {
		step.Error = err.Error()
		return step
	}
	step.Success = true
	step.Output = output
	return step
}

func (d *Dispatcher) run(ctx context.Context, action string, params model.Params, target actionTarget) (string, error) {
	switch action {
	case catalog.ActionRestartDeployment:
		return "", d.actuator.RestartDeployment(ctx, target.namespace, target.name)

	case catalog.ActionScaleDeployment:
		replicas, ok := params.Int("replicas")
		if !ok {
			return "", fmt.Errorf("scale_deployment requires a replicas param")
		}
		clamped := clampReplicas(replicas)
		if err := d.actuator.ScaleDeployment(ctx, target.namespace, target.name, int32(clamped)); err != nil {
			return "", err
		}
		if clamped != replicas {
			return fmt.Sprintf("replicas clamped from %d to %d", replicas, clamped), nil
		}
		return fmt.Sprintf("scaled to %d replicas", clamped), nil

	case catalog.ActionDeletePod:
		return "", d.actuator.DeletePod(ctx, target.namespace, target.name)

	case catalog.ActionDeleteDeployment:
		return "", d.actuator.DeleteDeployment(ctx, target.namespace, target.name)

	case catalog.ActionRollbackDeployment:
		return "", d.actuator.RollbackDeployment(ctx, target.namespace, target.name)

	case catalog.ActionCordonNode:
		return "", d.actuator.CordonNode(ctx, target.name)

	case catalog.ActionUncordonNode:
		return "", d.actuator.UncordonNode(ctx, target.name)

	case catalog.ActionDrainNode:
		return "", d.actuator.DrainNode(ctx, target.name)

	case catalog.ActionGetDeploymentStatus:
		return d.actuator.GetDeploymentStatus(ctx, target.namespace, target.name)

	case catalog.ActionGetPodEvents:
		events, err := d.actuator.GetPodEvents(ctx, target.namespace, target.name, maxRecentEvents)
		if err != nil {
			return "", err
		}
		return strings.Join(events, "\n"), nil

	case catalog.ActionCheckNodeHealth:
		return d.actuator.CheckNodeHealth(ctx, target.name)
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedAction, action)
}

func clampReplicas(n int) int {
	if n < minReplicas {
		return minReplicas
	}
	if n > maxReplicas {
		return maxReplicas
	}
	return n
}
