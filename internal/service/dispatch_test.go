package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Shrinet82/ai-sre-agent/internal/catalog"
	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

func podRequest() model.IncidentRequest {
	return model.IncidentRequest{
		AlertName: "PodCrashLoopBackOff",
		Namespace: "payments",
		Target:    "api-7f9c",
	}
}

func TestExecuteRestartDeployment(t *testing.T) {
	act := newFakeActuator()
	d := NewDispatcher(act, TargetDefaults{})

	step := d.Execute(context.Background(), catalog.ActionRestartDeployment,
		model.Params{"namespace": "payments", "deployment": "api"}, podRequest())

	if !step.Success {
		t.Fatalf("step failed: %s", step.Error)
	}
	if act.calls[0] != "restart_deployment/payments/api" {
		t.Fatalf("unexpected call %s", act.calls[0])
	}
}

func TestExecuteScaleClampsReplicas(t *testing.T) {
	act := newFakeActuator()
	d := NewDispatcher(act, TargetDefaults{})

	step := d.Execute(context.Background(), catalog.ActionScaleDeployment,
		model.Params{"namespace": "payments", "deployment": "api", "replicas": float64(50)}, podRequest())

	if !step.Success {
		t.Fatalf("step failed: %s", step.Error)
	}
	if act.calls[0] != "scale_deployment/payments/api/10" {
		t.Fatalf("expected clamp to 10, got %s", act.calls[0])
	}
	if !strings.Contains(step.Output, "clamped from 50 to 10") {
		t.Fatalf("output = %q", step.Output)
	}
}

func TestExecuteDeploymentActionWithoutParamFails(t *testing.T) {
	act := newFakeActuator()
	d := NewDispatcher(act, TargetDefaults{})

	step := d.Execute(context.Background(), catalog.ActionRestartDeployment, nil, podRequest())
	if step.Success {
		t.Fatal("expected failure without deployment param")
	}
	if act.callCount() != 0 {
		t.Fatal("actuator must not be called")
	}
}

func TestExecuteDeploymentActionUsesConfiguredDefaults(t *testing.T) {
	act := newFakeActuator()
	d := NewDispatcher(act, TargetDefaults{Namespace: "payments", Deployment: "api"})

	step := d.Execute(context.Background(), catalog.ActionRestartDeployment, nil, model.IncidentRequest{
		AlertName: "PodCrashLoopBackOff",
		Target:    "api-7f9c",
	})
	if !step.Success {
		t.Fatalf("step failed: %s", step.Error)
	}
	if act.calls[0] != "restart_deployment/payments/api" {
		t.Fatalf("unexpected call %s", act.calls[0])
	}
}

func TestExecuteAdvisorParamsWinOverDefaults(t *testing.T) {
	act := newFakeActuator()
	d := NewDispatcher(act, TargetDefaults{Namespace: "default", Deployment: "fallback"})

	step := d.Execute(context.Background(), catalog.ActionRestartDeployment,
		model.Params{"namespace": "payments", "deployment": "api"}, podRequest())
	if !step.Success {
		t.Fatalf("step failed: %s", step.Error)
	}
	if act.calls[0] != "restart_deployment/payments/api" {
		t.Fatalf("unexpected call %s", act.calls[0])
	}
}

func TestExecutePodActionFallsBackToAlertTarget(t *testing.T) {
	act := newFakeActuator()
	d := NewDispatcher(act, TargetDefaults{})

	step := d.Execute(context.Background(), catalog.ActionDeletePod, nil, podRequest())
	if !step.Success {
		t.Fatalf("step failed: %s", step.Error)
	}
	if act.calls[0] != "delete_pod/payments/api-7f9c" {
		t.Fatalf("unexpected call %s", act.calls[0])
	}
}

func TestExecuteUnsupportedActionRecorded(t *testing.T) {
	act := newFakeActuator()
	d := NewDispatcher(act, TargetDefaults{})

	step := d.Execute(context.Background(), "manual_review", nil, podRequest())
	if step.Success {
		t.Fatal("expected failure for non-executable action")
	}
	if !strings.Contains(step.Error, "unsupported action") {
		t.Fatalf("error = %q", step.Error)
	}
	if act.callCount() != 0 {
		t.Fatal("actuator must not be called")
	}
}

func TestExecuteActuationFailureCaptured(t *testing.T) {
	act := newFakeActuator()
	act.errs["delete_pod/payments/api-7f9c"] = fmt.Errorf("pods \"api-7f9c\" is forbidden")
	d := NewDispatcher(act, TargetDefaults{})

	step := d.Execute(context.Background(), catalog.ActionDeletePod, nil, podRequest())
	if step.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(step.Error, "forbidden") {
		t.Fatalf("error = %q", step.Error)
	}
}

// slowActuator blocks inside RestartDeployment until released, tracking the
// number of concurrent entries.
type slowActuator struct {
	fakeActuator
	mu      sync.Mutex
	active  int
	maxSeen int
	release chan struct{}
}

func (s *slowActuator) RestartDeployment(_ context.Context, ns, name string) error {
	s.mu.Lock()
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	s.mu.Unlock()

	<-s.release

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return nil
}

func TestExecuteSerializesSameResource(t *testing.T) {
	act := &slowActuator{release: make(chan struct{})}
	d := NewDispatcher(act, TargetDefaults{})
	params := model.Params{"namespace": "payments", "deployment": "api"}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Execute(context.Background(), catalog.ActionRestartDeployment, params, podRequest())
		}()
	}

	close(act.release)
	wg.Wait()

	act.mu.Lock()
	defer act.mu.Unlock()
	if act.maxSeen != 1 {
		t.Fatalf("saw %d concurrent executions on one resource, want 1", act.maxSeen)
	}
}

func TestResolveTargetKeys(t *testing.T) {
	req := podRequest()
	tests := []struct {
		action string
		params model.Params
		key    string
	}{
		{catalog.ActionRestartDeployment, model.Params{"deployment": "api"}, "deployment/payments/api"},
		{catalog.ActionDeletePod, nil, "pod/payments/api-7f9c"},
		{catalog.ActionCordonNode, model.Params{"node": "worker-1"}, "node//worker-1"},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			target, err := resolveTarget(tt.action, tt.params, req, TargetDefaults{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if target.key() != tt.key {
				t.Fatalf("key = %s, want %s", target.key(), tt.key)
			}
		})
	}
}
