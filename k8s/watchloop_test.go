package k8s

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"

	"github.com/sreops/aiops-engine/clustermodel"
)

type collectingHandler struct {
	mu     sync.Mutex
	events []clustermodel.ClusterEvent
}

func (h *collectingHandler) HandleEvent(ctx context.Context, event clustermodel.ClusterEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *collectingHandler) snapshot() []clustermodel.ClusterEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]clustermodel.ClusterEvent, len(h.events))
	copy(out, h.events)
	return out
}

func crashLoopPod(name, ns string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns},
		Status: corev1.PodStatus{
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "app", State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{Reason: "CrashLoopBackOff"}}},
			},
		},
	}
}

func TestScanPodsEmitsCrashLoopOnce(t *testing.T) {
	clientset := fake.NewSimpleClientset(crashLoopPod("nginx-abc", "prod"))
	handler := &collectingHandler{}
	w := NewWatchLoop(clientset, nil, time.Minute, handler, zap.NewNop())

	require.NoError(t, w.scanPods(context.Background()))
	require.NoError(t, w.scanPods(context.Background()))

	events := handler.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, clustermodel.CrashLoop, events[0].Kind)
	require.Equal(t, "nginx-abc", events[0].ResourceName)
}

func TestScanPodsRearmsAfterRecovery(t *testing.T) {
	clientset := fake.NewSimpleClientset(crashLoopPod("nginx-abc", "prod"))
	handler := &collectingHandler{}
	w := NewWatchLoop(clientset, nil, time.Minute, handler, zap.NewNop())

	require.NoError(t, w.scanPods(context.Background()))
	require.Len(t, handler.snapshot(), 1)

	healthy := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "nginx-abc", Namespace: "prod"},
		Status: corev1.PodStatus{
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "app", State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}}},
			},
		},
	}
	_, err := clientset.CoreV1().Pods("prod").Update(context.Background(), healthy, metav1.UpdateOptions{})
	require.NoError(t, err)
	require.NoError(t, w.scanPods(context.Background()))
	require.Empty(t, w.KnownIssues())

	crashing := crashLoopPod("nginx-abc", "prod")
	_, err = clientset.CoreV1().Pods("prod").Update(context.Background(), crashing, metav1.UpdateOptions{})
	require.NoError(t, err)
	require.NoError(t, w.scanPods(context.Background()))

	events := handler.snapshot()
	require.Len(t, events, 2)
}

func TestScanPodsAnnotatesResourceUsageWhenMetricsClientAvailable(t *testing.T) {
	clientset := fake.NewSimpleClientset(crashLoopPod("nginx-abc", "prod"))
	metricsClient := metricsfake.NewSimpleClientset()
	// PodMetrics' real API resource name ("pods") doesn't match the naive pluralization
	// ("podmetrics") that ObjectTracker.Add uses, so the fixture must go through Create
	// with an explicit GVR instead of being passed to NewSimpleClientset directly.
	require.NoError(t, metricsClient.Tracker().Create(metricsv1beta1.SchemeGroupVersion.WithResource("pods"), &metricsv1beta1.PodMetrics{
		ObjectMeta: metav1.ObjectMeta{Name: "nginx-abc", Namespace: "prod"},
		Containers: []metricsv1beta1.ContainerMetrics{
			{
				Name: "app",
				Usage: corev1.ResourceList{
					corev1.ResourceCPU:    resource.MustParse("150m"),
					corev1.ResourceMemory: resource.MustParse("64Mi"),
				},
			},
		},
	}, "prod"))
	handler := &collectingHandler{}
	w := NewWatchLoop(clientset, metricsClient, time.Minute, handler, zap.NewNop())

	require.NoError(t, w.scanPods(context.Background()))

	events := handler.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, "150m", events[0].Annotations["cpu_usage"])
	require.Equal(t, "64Mi", events[0].Annotations["memory_usage"])
}

func TestScanPodsSkipsAnnotationWhenMetricsClientNil(t *testing.T) {
	clientset := fake.NewSimpleClientset(crashLoopPod("nginx-abc", "prod"))
	handler := &collectingHandler{}
	w := NewWatchLoop(clientset, nil, time.Minute, handler, zap.NewNop())

	require.NoError(t, w.scanPods(context.Background()))

	events := handler.snapshot()
	require.Len(t, events, 1)
	require.NotContains(t, events[0].Annotations, "cpu_usage")
}

func TestScanNodesRequiresTwoConsecutiveCycles(t *testing.T) {
	node := &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: "node-1"},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{
				{Type: corev1.NodeReady, Status: corev1.ConditionFalse, LastTransitionTime: metav1.Now()},
			},
		},
	}
	clientset := fake.NewSimpleClientset(node)
	handler := &collectingHandler{}
	w := NewWatchLoop(clientset, nil, time.Hour, handler, zap.NewNop())

	require.NoError(t, w.scanNodes(context.Background()))
	require.Empty(t, handler.snapshot(), "first non-ready observation should not fire alone")

	require.NoError(t, w.scanNodes(context.Background()))
	events := handler.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, clustermodel.NotReadyNode, events[0].Kind)
}

func TestScanNodesFiresImmediatelyWhenTransitionIsStale(t *testing.T) {
	node := &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: "node-1"},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{
				{Type: corev1.NodeReady, Status: corev1.ConditionFalse, LastTransitionTime: metav1.NewTime(time.Now().Add(-time.Hour))},
			},
		},
	}
	clientset := fake.NewSimpleClientset(node)
	handler := &collectingHandler{}
	w := NewWatchLoop(clientset, nil, time.Minute, handler, zap.NewNop())

	require.NoError(t, w.scanNodes(context.Background()))
	require.Len(t, handler.snapshot(), 1)
}

func TestScanDeploymentsDetectsReplicationFailure(t *testing.T) {
	replicas := int32(3)
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "api", Namespace: "prod"},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
		Status:     appsv1.DeploymentStatus{AvailableReplicas: 0},
	}
	clientset := fake.NewSimpleClientset(dep)
	handler := &collectingHandler{}
	w := NewWatchLoop(clientset, nil, time.Minute, handler, zap.NewNop())

	require.NoError(t, w.scanDeployments(context.Background()))
	events := handler.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, clustermodel.ReplicationFailure, events[0].Kind)
}

func TestScanDeploymentsHealthyDoesNotFire(t *testing.T) {
	replicas := int32(3)
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "api", Namespace: "prod"},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
		Status:     appsv1.DeploymentStatus{AvailableReplicas: 3},
	}
	clientset := fake.NewSimpleClientset(dep)
	handler := &collectingHandler{}
	w := NewWatchLoop(clientset, nil, time.Minute, handler, zap.NewNop())

	require.NoError(t, w.scanDeployments(context.Background()))
	require.Empty(t, handler.snapshot())
}
