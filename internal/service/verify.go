package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

// HealthProbe is the read-only health view the verifier polls.
type HealthProbe interface {
	DeploymentHealth(ctx context.Context, namespace, name string) (ready, desired int32, err error)
	PodPhase(ctx context.Context, namespace, pod string) (string, error)
	NodeReady(ctx context.Context, name string) (bool, error)
}

// Verifier waits out a grace period after a mutating action, then polls the
// target's health until it is ready or the window closes. The outcome is
// three-way: healthy, unhealthy, or unknown when no definitive observation
// was possible.
type Verifier struct {
	probe    HealthProbe
	defaults TargetDefaults
	grace    time.Duration
	window   time.Duration
	interval time.Duration
}

func NewVerifier(probe HealthProbe, defaults TargetDefaults, grace, window, interval time.Duration) *Verifier {
	return &Verifier{probe: probe, defaults: defaults, grace: grace, window: window, interval: interval}
}

func (v *Verifier) Verify(ctx context.Context, action string, params model.Params, req model.IncidentRequest) (outcome, detail string) {
	// Targets resolve with the same defaults the dispatcher used, so the
	// verifier observes the resource that was actually acted on.
	target, err := resolveTarget(action, params, req, v.defaults)
	if err != nil {
		return model.VerifyUnknown, fmt.Sprintf("cannot verify: %v", err)
	}

	select {
	case <-ctx.Done():
		return model.VerifyUnknown, "verification cancelled"
	case <-time.After(v.grace):
	}

	deadline := time.Now().Add(v.window)
	lastDetail := ""
	observed := false

	for {
		healthy, d, err := v.observe(ctx, target)
		if err == nil {
			observed = true
			lastDetail = d
			if healthy {
				return model.VerifyHealthy, d
			}
		}

		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return model.VerifyUnknown, "verification cancelled"
		case <-time.After(v.interval):
		}
	}

	if observed {
		return model.VerifyUnhealthy, lastDetail
	}
	return model.VerifyUnknown, "verification timed out"
}

func (v *Verifier) observe(ctx context.Context, target actionTarget) (bool, string, error) {
	switch target.kind {
	case "deployment":
		ready, desired, err := v.probe.DeploymentHealth(ctx, target.namespace, target.name)
		if err != nil {
			return false, "", err
		}
		detail := fmt.Sprintf("deployment %s/%s: %d/%d ready", target.namespace, target.name, ready, desired)
		return desired > 0 && ready >= desired, detail, nil

	case "pod":
		phase, err := v.probe.PodPhase(ctx, target.namespace, target.name)
		if err != nil {
			// A deleted pod's replacement carries a new name; the old
			// one disappearing is not a definitive observation.
			return false, "", err
		}
		detail := fmt.Sprintf("pod %s/%s: phase=%s", target.namespace, target.name, phase)
		return phase == "Running", detail, nil

	case "node":
		ready, err := v.probe.NodeReady(ctx, target.name)
		if err != nil {
			return false, "", err
		}
		detail := fmt.Sprintf("node %s: ready=%t", target.name, ready)
		return ready, detail, nil
	}

	return false, "", fmt.Errorf("unknown target kind %q", target.kind)
}
