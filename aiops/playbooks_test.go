package aiops

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sreops/aiops-engine/clustermodel"
)

func TestRegistryHasFiveBuiltinPlaybooks(t *testing.T) {
	r := NewPlaybookRegistry(nil)
	summaries := r.ListPlaybooks()
	require.Len(t, summaries, 5)

	ids := make(map[string]bool)
	for _, s := range summaries {
		ids[s.ID] = true
	}
	for _, want := range []string{"crash_loop_remediation", "oom_kill_remediation", "deployment_rollback", "node_not_ready_remediation", "scale_up_on_load"} {
		require.True(t, ids[want], "missing playbook %s", want)
	}
}

func TestCrashLoopRemediationStepShape(t *testing.T) {
	r := NewPlaybookRegistry(nil)
	pb, ok := r.Get("crash_loop_remediation")
	require.True(t, ok)
	require.Len(t, pb.Steps, 4)
	require.Equal(t, "k8s_describe_resource", pb.Steps[0].ToolName)
	require.Equal(t, RiskLow, pb.Steps[0].RiskLevel)
	require.Equal(t, "k8s_restart_pod", pb.Steps[2].ToolName)
	require.Equal(t, RiskMedium, pb.Steps[2].RiskLevel)
	require.True(t, pb.RequiresApproval())
}

func TestScaleUpOnLoadIsSingleStep(t *testing.T) {
	r := NewPlaybookRegistry(nil)
	pb, ok := r.Get("scale_up_on_load")
	require.True(t, ok)
	require.Len(t, pb.Steps, 1)
	require.Equal(t, "k8s_scale_deployment", pb.Steps[0].ToolName)
}

func TestResolveParamsFillsPlaceholdersFromEvent(t *testing.T) {
	event := clustermodel.NewClusterEvent(clustermodel.CrashLoop, clustermodel.SeverityCritical, "Pod", "payments", "api-7f8", time.Now(), nil)
	step := PlaybookStep{
		ToolName:       "k8s_describe_resource",
		ParamsTemplate: map[string]interface{}{"resource_type": "pod", "resource_name": "{resource_name}", "namespace": "{namespace}", "tail_lines": 100},
	}
	resolved, missing := step.ResolveParams(event, nil)
	require.Empty(t, missing)
	require.Equal(t, "api-7f8", resolved["resource_name"])
	require.Equal(t, "payments", resolved["namespace"])
	require.Equal(t, 100, resolved["tail_lines"])
}

func TestResolveParamsRendersEmptyAndFlagsMissingWhenFieldAbsent(t *testing.T) {
	event := clustermodel.NewClusterEvent(clustermodel.CrashLoop, clustermodel.SeverityCritical, "Pod", "payments", "api-7f8", time.Now(), nil)
	step := PlaybookStep{ParamsTemplate: map[string]interface{}{"replicas": "{target_replicas}"}}
	resolved, missing := step.ResolveParams(event, nil)
	require.Equal(t, "", resolved["replicas"])
	require.Equal(t, []string{"replicas"}, missing)
}

func TestResolveParamsPrefersExtraOverEventField(t *testing.T) {
	event := clustermodel.NewClusterEvent(clustermodel.CrashLoop, clustermodel.SeverityCritical, "Pod", "payments", "api-7f8", time.Now(), nil)
	step := PlaybookStep{ParamsTemplate: map[string]interface{}{"replicas": "{target_replicas}"}}
	resolved, missing := step.ResolveParams(event, map[string]string{"target_replicas": "5"})
	require.Empty(t, missing)
	require.Equal(t, "5", resolved["replicas"])
}
