// Kubernetes client used by the actuator, the verifier and the read-only
// query surface. Built from in-cluster config, falling back to kubeconfig.

package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/Shrinet82/ai-sre-agent/internal/config"
)

type KubeClient struct {
	clientset kubernetes.Interface
}

func NewKubeClient(cfg config.KubeConfig) (*KubeClient, error) {
	restCfg, err := getKubeConfig(cfg.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("k8s config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("k8s clientset: %w", err)
	}
	return &KubeClient{clientset: clientset}, nil
}

// NewKubeClientWith wraps an existing clientset. Tests pass the fake
// clientset here.
func NewKubeClientWith(clientset kubernetes.Interface) *KubeClient {
	return &KubeClient{clientset: clientset}
}

func getKubeConfig(kubeconfig string) (*rest.Config, error) {
	// Try in-cluster first
	restCfg, err := rest.InClusterConfig()
	if err == nil {
		return restCfg, nil
	}

	// Fall back to kubeconfig
	if kubeconfig == "" {
		home, _ := os.UserHomeDir()
		kubeconfig = filepath.Join(home, ".kube", "config")
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

// ============================================================================
// Mutations
// ============================================================================

// RestartDeployment triggers a rolling restart by stamping the pod template
// with the same annotation kubectl rollout restart uses.
func (c *KubeClient) RestartDeployment(ctx context.Context, namespace, name string) error {
	patch := fmt.Sprintf(
		`{"spec":{"template":{"metadata":{"annotations":{"kubectl.kubernetes.io/restartedAt":%q}}}}}`,
		time.Now().UTC().Format(time.RFC3339),
	)
	_, err := c.clientset.AppsV1().Deployments(namespace).Patch(
		ctx, name, types.StrategicMergePatchType, []byte(patch), metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("failed to restart deployment %s/%s: %w", namespace, name, err)
	}
	return nil
}

func (c *KubeClient) ScaleDeployment(ctx context.Context, namespace, name string, replicas int32) error {
	scale, err := c.clientset.AppsV1().Deployments(namespace).GetScale(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to read scale of %s/%s: %w", namespace, name, err)
	}
	scale.Spec.Replicas = replicas
	_, err = c.clientset.AppsV1().Deployments(namespace).UpdateScale(ctx, name, scale, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("failed to scale deployment %s/%s: %w", namespace, name, err)
	}
	return nil
}

func (c *KubeClient) DeletePod(ctx context.Context, namespace, name string) error {
	err := c.clientset.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete pod %s/%s: %w", namespace, name, err)
	}
	return nil
}

func (c *KubeClient) DeleteDeployment(ctx context.Context, namespace, name string) error {
	err := c.clientset.AppsV1().Deployments(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete deployment %s/%s: %w", namespace, name, err)
	}
	return nil
}

func (c *KubeClient) CordonNode(ctx context.Context, name string) error {
	return c.setUnschedulable(ctx, name, true)
}

func (c *KubeClient) UncordonNode(ctx context.Context, name string) error {
	return c.setUnschedulable(ctx, name, false)
}

func (c *KubeClient) setUnschedulable(ctx context.Context, name string, unschedulable bool) error {
	patch := fmt.Sprintf(`{"spec":{"unschedulable":%t}}`, unschedulable)
	_, err := c.clientset.CoreV1().Nodes().Patch(
		ctx, name, types.StrategicMergePatchType, []byte(patch), metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("failed to patch node %s: %w", name, err)
	}
	return nil
}

// DrainNode cordons the node then deletes its non-DaemonSet pods so they get
// rescheduled elsewhere.
func (c *KubeClient) DrainNode(ctx context.Context, name string) error {
	if err := c.CordonNode(ctx, name); err != nil {
		return err
	}

	pods, err := c.clientset.CoreV1().Pods("").List(ctx, metav1.ListOptions{
		FieldSelector: "spec.nodeName=" + name,
	})
	if err != nil {
		return fmt.Errorf("failed to list pods on node %s: %w", name, err)
	}

	for _, pod := range pods.Items {
		if ownedByDaemonSet(pod) {
			continue
		}
		if err := c.clientset.CoreV1().Pods(pod.Namespace).Delete(ctx, pod.Name, metav1.DeleteOptions{}); err != nil {
			return fmt.Errorf("failed to evict pod %s/%s: %w", pod.Namespace, pod.Name, err)
		}
	}
	return nil
}

func ownedByDaemonSet(pod corev1.Pod) bool {
	for _, ref := range pod.OwnerReferences {
		if ref.Kind == "DaemonSet" {
			return true
		}
	}
	return false
}

// RollbackDeployment rewrites the deployment's container images from the
// previous ReplicaSet revision.
func (c *KubeClient) RollbackDeployment(ctx context.Context, namespace, name string) error {
	dep, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get deployment %s/%s: %w", namespace, name, err)
	}

	selector, err := metav1.LabelSelectorAsSelector(dep.Spec.Selector)
	if err != nil {
		return fmt.Errorf("bad selector on %s/%s: %w", namespace, name, err)
	}
	rsList, err := c.clientset.AppsV1().ReplicaSets(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to list replicasets for %s/%s: %w", namespace, name, err)
	}
	if len(rsList.Items) < 2 {
		return fmt.Errorf("no previous revision for deployment %s/%s", namespace, name)
	}

	// Sort by revision annotation, newest first. Index 1 is the rollback
	// target.
	sort.Slice(rsList.Items, func(i, j int) bool {
		return rsRevision(rsList.Items[i].Annotations) > rsRevision(rsList.Items[j].Annotations)
	})
	previous := rsList.Items[1]

	prevImages := map[string]string{}
	for _, container := range previous.Spec.Template.Spec.Containers {
		prevImages[container.Name] = container.Image
	}
	for i, container := range dep.Spec.Template.Spec.Containers {
		if image, ok := prevImages[container.Name]; ok {
			dep.Spec.Template.Spec.Containers[i].Image = image
		}
	}

	_, err = c.clientset.AppsV1().Deployments(namespace).Update(ctx, dep, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("failed to roll back deployment %s/%s: %w", namespace, name, err)
	}
	return nil
}

func rsRevision(annotations map[string]string) int64 {
	rev, _ := strconv.ParseInt(annotations["deployment.kubernetes.io/revision"], 10, 64)
	return rev
}

// ============================================================================
// Reads
// ============================================================================

// DeploymentHealth returns ready vs desired replicas. The verifier polls
// this after a deployment-level action.
func (c *KubeClient) DeploymentHealth(ctx context.Context, namespace, name string) (ready, desired int32, err error) {
	dep, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get deployment %s/%s: %w", namespace, name, err)
	}
	desired = int32(1)
	if dep.Spec.Replicas != nil {
		desired = *dep.Spec.Replicas
	}
	return dep.Status.ReadyReplicas, desired, nil
}

// NodeReady reports whether the node's Ready condition is True.
func (c *KubeClient) NodeReady(ctx context.Context, name string) (bool, error) {
	node, err := c.clientset.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to get node %s: %w", name, err)
	}
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue, nil
		}
	}
	return false, nil
}

// GetDeploymentStatus returns a one-line status summary.
func (c *KubeClient) GetDeploymentStatus(ctx context.Context, namespace, name string) (string, error) {
	dep, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get deployment %s/%s: %w", namespace, name, err)
	}
	desired := int32(1)
	if dep.Spec.Replicas != nil {
		desired = *dep.Spec.Replicas
	}
	return fmt.Sprintf("deployment %s/%s: %d/%d ready, %d updated, %d available",
		namespace, name, dep.Status.ReadyReplicas, desired,
		dep.Status.UpdatedReplicas, dep.Status.AvailableReplicas), nil
}

// GetPodEvents returns recent event lines for a pod, newest last, capped at
// limit.
func (c *KubeClient) GetPodEvents(ctx context.Context, namespace, pod string, limit int) ([]string, error) {
	events, err := c.clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: "involvedObject.name=" + pod,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events for %s/%s: %w", namespace, pod, err)
	}

	items := events.Items
	sort.Slice(items, func(i, j int) bool {
		return items[i].LastTimestamp.Before(&items[j].LastTimestamp)
	})
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}

	lines := make([]string, 0, len(items))
	for _, ev := range items {
		lines = append(lines, fmt.Sprintf("%s %s: %s", ev.Type, ev.Reason, ev.Message))
	}
	return lines, nil
}

// CheckNodeHealth summarizes a node's conditions.
func (c *KubeClient) CheckNodeHealth(ctx context.Context, name string) (string, error) {
	node, err := c.clientset.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get node %s: %w", name, err)
	}
	summary := fmt.Sprintf("node %s: unschedulable=%t", name, node.Spec.Unschedulable)
	for _, cond := range node.Status.Conditions {
		summary += fmt.Sprintf(", %s=%s", cond.Type, cond.Status)
	}
	return summary, nil
}

// PodLogs tails a pod's logs. Used as the log-excerpt fallback when Loki is
// not configured.
func (c *KubeClient) PodLogs(ctx context.Context, namespace, pod string, tailLines int64) (string, error) {
	req := c.clientset.CoreV1().Pods(namespace).GetLogs(pod, &corev1.PodLogOptions{
		TailLines: &tailLines,
	})
	stream, err := req.Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to stream logs for %s/%s: %w", namespace, pod, err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return "", fmt.Errorf("failed to read logs for %s/%s: %w", namespace, pod, err)
	}
	return string(data), nil
}

// PodPhase returns the pod's lifecycle phase.
func (c *KubeClient) PodPhase(ctx context.Context, namespace, pod string) (string, error) {
	p, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, pod, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get pod %s/%s: %w", namespace, pod, err)
	}
	return string(p.Status.Phase), nil
}

// ClusterSummary - coarse cluster counts for the query surface.
type ClusterSummary struct {
	Nodes       int `json:"nodes"`
	NodesReady  int `json:"nodes_ready"`
	Pods        int `json:"pods"`
	PodsRunning int `json:"pods_running"`
	PodsPending int `json:"pods_pending"`
	PodsFailed  int `json:"pods_failed"`
}

func (c *KubeClient) GetClusterSummary(ctx context.Context) (*ClusterSummary, error) {
	summary := &ClusterSummary{}

	nodes, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	summary.Nodes = len(nodes.Items)
	for _, node := range nodes.Items {
		for _, cond := range node.Status.Conditions {
			if cond.Type == corev1.NodeReady && cond.Status == corev1.ConditionTrue {
				summary.NodesReady++
			}
		}
	}

	pods, err := c.clientset.CoreV1().Pods("").List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}
	summary.Pods = len(pods.Items)
	for _, pod := range pods.Items {
		switch pod.Status.Phase {
		case corev1.PodRunning:
			summary.PodsRunning++
		case corev1.PodPending:
			summary.PodsPending++
		case corev1.PodFailed:
			summary.PodsFailed++
		}
	}
	return summary, nil
}

// PodInfo - one row of the namespace pod listing.
type PodInfo struct {
	Name     string `json:"name"`
	Phase    string `json:"phase"`
	Ready    bool   `json:"ready"`
	Restarts int32  `json:"restarts"`
	Node     string `json:"node"`
}

func (c *KubeClient) ListNamespacePods(ctx context.Context, namespace string) ([]PodInfo, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}

	list := make([]PodInfo, 0, len(pods.Items))
	for _, pod := range pods.Items {
		info := PodInfo{
			Name:  pod.Name,
			Phase: string(pod.Status.Phase),
			Node:  pod.Spec.NodeName,
		}
		ready := len(pod.Status.ContainerStatuses) > 0
		for _, cs := range pod.Status.ContainerStatuses {
			info.Restarts += cs.RestartCount
			if !cs.Ready {
				ready = false
			}
		}
		info.Ready = ready
		list = append(list, info)
	}
	return list, nil
}
