/*
 * ChatCLI - Command Line Interface for LLM interaction
 * Copyright (c) 2024 Edilson Freitas
 * License: MIT
 */
package k8s

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"go.uber.org/zap"

	"github.com/sreops/aiops-engine/clustermodel"
)

// EventHandler receives every newly detected ClusterEvent. The WatchLoop itself never talks
// to the RuleEngine or Executor directly, keeping cluster-scanning independent of remediation
// policy — the lifecycle coordinator wires the two together.
type EventHandler interface {
	HandleEvent(ctx context.Context, event clustermodel.ClusterEvent)
}

// WatchLoop periodically scans the cluster for the four built-in incident kinds, deduping
// against a live known-issues set so each unresolved incident fires exactly once. Grounded
// on chatcli k8s/watcher.go's ticker-based ResourceWatcher loop and
// operator/controllers/watcher_bridge.go's poll/dedup shape, narrowed from a general
// observability collector to incident detection only.
type WatchLoop struct {
	clientset kubernetes.Interface
	metrics   metricsv.Interface // optional; nil disables resource-usage annotation enrichment
	interval  time.Duration
	handler   EventHandler
	logger    *zap.Logger

	mu         sync.Mutex // guards known and nodeStreak for the read-only diagnostic snapshot
	known      map[clustermodel.KnownIssueKey]time.Time
	nodeStreak map[string]int
}

// NewWatchLoop builds a WatchLoop over the given clientset. metricsClient may be nil, in which
// case crash-loop and OOM events carry no cpu_usage/memory_usage annotations — the
// metrics-server aggregated API is not available in every cluster.
func NewWatchLoop(clientset kubernetes.Interface, metricsClient metricsv.Interface, interval time.Duration, handler EventHandler, logger *zap.Logger) *WatchLoop {
	return &WatchLoop{
		clientset:  clientset,
		metrics:    metricsClient,
		interval:   interval,
		handler:    handler,
		logger:     logger,
		known:      make(map[clustermodel.KnownIssueKey]time.Time),
		nodeStreak: make(map[string]int),
	}
}

// podResourceUsage queries the metrics-server aggregated API for one pod's container resource
// usage. A nil metrics client, a query error, or a container the pod's metrics don't cover are
// all treated as soft failures: callers get ok=false and proceed without the annotation.
func (w *WatchLoop) podResourceUsage(ctx context.Context, namespace, podName, containerName string) (cpu, memory string, ok bool) {
	if w.metrics == nil {
		return "", "", false
	}
	podMetrics, err := w.metrics.MetricsV1beta1().PodMetricses(namespace).Get(ctx, podName, metav1.GetOptions{})
	if err != nil {
		return "", "", false
	}
	for _, c := range podMetrics.Containers {
		if c.Name != containerName {
			continue
		}
		return fmt.Sprintf("%dm", c.Usage.Cpu().MilliValue()), fmt.Sprintf("%dMi", c.Usage.Memory().Value()/(1024*1024)), true
	}
	return "", "", false
}

// Run blocks, scanning on every tick until ctx is cancelled.
func (w *WatchLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("watch loop started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch loop stopped")
			return
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

// runCycle performs one scan. Each sub-scan is isolated: a failure in one (e.g. pods)
// neither blocks nor corrupts the known-issues bookkeeping for the others.
func (w *WatchLoop) runCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, w.interval/2)
	defer cancel()

	if err := w.scanPods(cycleCtx); err != nil {
		w.logger.Warn("pod scan failed, skipping this cycle", zap.Error(err))
	}
	if err := w.scanNodes(cycleCtx); err != nil {
		w.logger.Warn("node scan failed, skipping this cycle", zap.Error(err))
	}
	if err := w.scanDeployments(cycleCtx); err != nil {
		w.logger.Warn("deployment scan failed, skipping this cycle", zap.Error(err))
	}
}

func (w *WatchLoop) scanPods(ctx context.Context) error {
	pods, err := w.clientset.CoreV1().Pods("").List(ctx, metav1.ListOptions{})
	if err != nil {
		return err
	}

	crashObserved := make(map[clustermodel.KnownIssueKey]clustermodel.ClusterEvent)
	oomObserved := make(map[clustermodel.KnownIssueKey]clustermodel.ClusterEvent)

	for _, pod := range pods.Items {
		for _, cs := range pod.Status.ContainerStatuses {
			key := clustermodel.KnownIssueKey{ResourceKind: "Pod", Namespace: pod.Namespace, ResourceName: pod.Name, Kind: clustermodel.CrashLoop}

			if isCrashLoop(cs) {
				annotations := map[string]string{"container": cs.Name, "restart_count": strconv.Itoa(int(cs.RestartCount))}
				if cpu, mem, ok := w.podResourceUsage(ctx, pod.Namespace, pod.Name, cs.Name); ok {
					annotations["cpu_usage"] = cpu
					annotations["memory_usage"] = mem
				}
				crashObserved[key] = clustermodel.NewClusterEvent(
					clustermodel.CrashLoop, clustermodel.SeverityCritical, "Pod", pod.Namespace, pod.Name, time.Now(), annotations,
				)
			}
			if isOOMKilled(cs) {
				oomKey := key
				oomKey.Kind = clustermodel.OOMKilled
				annotations := map[string]string{"container": cs.Name, "last_termination_reason": "OOMKilled"}
				if cpu, mem, ok := w.podResourceUsage(ctx, pod.Namespace, pod.Name, cs.Name); ok {
					annotations["cpu_usage"] = cpu
					annotations["memory_usage"] = mem
				}
				oomObserved[oomKey] = clustermodel.NewClusterEvent(
					clustermodel.OOMKilled, clustermodel.SeverityCritical, "Pod", pod.Namespace, pod.Name, time.Now(), annotations,
				)
			}
		}
	}

	w.reconcile(ctx, clustermodel.CrashLoop, crashObserved)
	w.reconcile(ctx, clustermodel.OOMKilled, oomObserved)
	return nil
}

func (w *WatchLoop) scanNodes(ctx context.Context) error {
	nodes, err := w.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return err
	}

	observed := make(map[clustermodel.KnownIssueKey]clustermodel.ClusterEvent)
	seenThisCycle := make(map[string]bool)

	w.mu.Lock()
	for _, node := range nodes.Items {
		seenThisCycle[node.Name] = true
		ready, lastTransition := nodeReadyCondition(node)
		if ready {
			delete(w.nodeStreak, node.Name)
			continue
		}

		w.nodeStreak[node.Name]++
		qualifies := w.nodeStreak[node.Name] >= 2 || time.Since(lastTransition) >= w.interval
		if !qualifies {
			continue
		}

		key := clustermodel.KnownIssueKey{ResourceKind: "Node", Namespace: "", ResourceName: node.Name, Kind: clustermodel.NotReadyNode}
		observed[key] = clustermodel.NewClusterEvent(
			clustermodel.NotReadyNode, clustermodel.SeverityCritical, "Node", "", node.Name, time.Now(), nil,
		)
	}
	for name := range w.nodeStreak {
		if !seenThisCycle[name] {
			delete(w.nodeStreak, name)
		}
	}
	w.mu.Unlock()

	w.reconcile(ctx, clustermodel.NotReadyNode, observed)
	return nil
}

func (w *WatchLoop) scanDeployments(ctx context.Context) error {
	deployments, err := w.clientset.AppsV1().Deployments("").List(ctx, metav1.ListOptions{})
	if err != nil {
		return err
	}

	observed := make(map[clustermodel.KnownIssueKey]clustermodel.ClusterEvent)
	for _, dep := range deployments.Items {
		replicas := int32(1)
		if dep.Spec.Replicas != nil {
			replicas = *dep.Spec.Replicas
		}
		if replicas <= 0 || dep.Status.AvailableReplicas != 0 {
			continue
		}
		key := clustermodel.KnownIssueKey{ResourceKind: "Deployment", Namespace: dep.Namespace, ResourceName: dep.Name, Kind: clustermodel.ReplicationFailure}
		observed[key] = clustermodel.NewClusterEvent(
			clustermodel.ReplicationFailure, clustermodel.SeverityCritical, "Deployment", dep.Namespace, dep.Name, time.Now(),
			map[string]string{"desired_replicas": strconv.Itoa(int(replicas))},
		)
	}
	w.reconcile(ctx, clustermodel.ReplicationFailure, observed)
	return nil
}

// reconcile dispatches every newly-observed key of kind and removes known-issue entries of
// the same kind that are no longer present, re-arming future detection on that resource.
func (w *WatchLoop) reconcile(ctx context.Context, kind clustermodel.EventKind, observed map[clustermodel.KnownIssueKey]clustermodel.ClusterEvent) {
	w.mu.Lock()
	var newEvents []clustermodel.ClusterEvent
	for key, event := range observed {
		if _, known := w.known[key]; !known {
			w.known[key] = time.Now()
			newEvents = append(newEvents, event)
		}
	}
	for key := range w.known {
		if key.Kind != kind {
			continue
		}
		if _, stillObserved := observed[key]; !stillObserved {
			delete(w.known, key)
			w.logger.Info("known issue recovered", zap.String("kind", string(kind)), zap.String("resource", key.ResourceName), zap.String("namespace", key.Namespace))
		}
	}
	w.mu.Unlock()

	for _, event := range newEvents {
		w.handler.HandleEvent(ctx, event)
	}
}

// KnownIssues returns a read-only snapshot for diagnostics.
func (w *WatchLoop) KnownIssues() []clustermodel.KnownIssueKey {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]clustermodel.KnownIssueKey, 0, len(w.known))
	for k := range w.known {
		out = append(out, k)
	}
	return out
}

func isCrashLoop(cs corev1.ContainerStatus) bool {
	if cs.State.Waiting != nil {
		return cs.State.Waiting.Reason == "CrashLoopBackOff" || cs.State.Waiting.Reason == "Error"
	}
	return false
}

func isOOMKilled(cs corev1.ContainerStatus) bool {
	return cs.LastTerminationState.Terminated != nil && cs.LastTerminationState.Terminated.Reason == "OOMKilled"
}

func nodeReadyCondition(node corev1.Node) (ready bool, lastTransition time.Time) {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue, cond.LastTransitionTime.Time
		}
	}
	return false, time.Time{}
}
