package aiops

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sreops/aiops-engine/clustermodel"
)

// RiskLevel gates whether a step executes immediately or waits on human approval.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"    // executes immediately, notifies after
	RiskMedium RiskLevel = "medium" // requires approval
	RiskHigh   RiskLevel = "high"   // requires approval; the prompt carries a high-risk warning
)

// PlaybookStep is one ordered action of a playbook. Grounded on
// original_source/src/aiops/playbooks.py's PlaybookStep dataclass.
type PlaybookStep struct {
	Name           string
	Description    string
	RiskLevel      RiskLevel
	ToolName       string
	ParamsTemplate map[string]interface{} // string values may hold {field} placeholders
}

// ResolveParams fills every {field} placeholder in the step's template against the
// incident's ClusterEvent. A placeholder whose field is absent renders as empty — never as
// the literal template text or a sentinel like "None" — and its param name is returned in
// missing so the executor can fail the step with a clear reason instead of calling the tool
// with a silently blank argument.
func (s PlaybookStep) ResolveParams(event clustermodel.ClusterEvent, extra map[string]string) (params map[string]interface{}, missing []string) {
	params = make(map[string]interface{}, len(s.ParamsTemplate))
	for k, v := range s.ParamsTemplate {
		str, ok := v.(string)
		if !ok {
			params[k] = v
			continue
		}
		resolved, complete := resolveTemplate(str, event, extra)
		params[k] = resolved
		if !complete {
			missing = append(missing, k)
		}
	}
	return params, missing
}

// resolveTemplate substitutes every {field} placeholder in template, returning the rendered
// string and whether every placeholder it contained was found.
func resolveTemplate(template string, event clustermodel.ClusterEvent, extra map[string]string) (string, bool) {
	if !strings.Contains(template, "{") {
		return template, true
	}
	end := strings.IndexByte(template, '}')
	start := strings.LastIndexByte(template[:max(end, 0)], '{')
	if start < 0 || end < 0 {
		return template, true
	}
	field := template[start+1 : end]
	if strings.ContainsAny(field, "\":,[] ") {
		// Braces around non-identifier text are literal (e.g. a JSON patch body).
		rest, restComplete := resolveTemplate(template[end+1:], event, extra)
		return template[:end+1] + rest, restComplete
	}

	var value string
	var ok bool
	if extra != nil {
		value, ok = extra[field]
	}
	if !ok {
		value, ok = event.Field(field)
	}
	rest, restComplete := resolveTemplate(template[end+1:], event, extra)
	return template[:start] + value + rest, ok && restComplete
}

// Playbook is a named, ordered sequence of remediation steps.
type Playbook struct {
	ID          string
	Name        string
	Description string
	Steps       []PlaybookStep
}

// RequiresApproval reports whether any step in the playbook is above LOW risk.
func (p Playbook) RequiresApproval() bool {
	for _, s := range p.Steps {
		if s.RiskLevel != RiskLow {
			return true
		}
	}
	return false
}

// PlaybookSummary is the diagnostic shape returned by PlaybookRegistry.ListPlaybooks,
// supplementing the operational surface with the original's list_playbooks().
type PlaybookSummary struct {
	ID                string
	Name              string
	Description       string
	Steps             int
	RequiresApproval  bool
}

// PlaybookRegistry holds every known playbook, keyed by id.
type PlaybookRegistry struct {
	logger    *zap.Logger
	order     []string
	playbooks map[string]Playbook
}

// NewPlaybookRegistry registers the five built-in remediation playbooks, reproducing
// original_source/src/aiops/playbooks.py::_register_defaults exactly.
func NewPlaybookRegistry(logger *zap.Logger) *PlaybookRegistry {
	r := &PlaybookRegistry{logger: logger, playbooks: make(map[string]Playbook)}
	for _, pb := range defaultPlaybooks() {
		r.Register(pb)
	}
	return r
}

func defaultPlaybooks() []Playbook {
	return []Playbook{
		{
			ID:          "crash_loop_remediation",
			Name:        "CrashLoop Remediation",
			Description: "Diagnose and remediate a CrashLoopBackOff pod",
			Steps: []PlaybookStep{
				{
					Name: "Describe Pod", Description: "Gather pod conditions and events",
					RiskLevel: RiskLow, ToolName: "k8s_describe_resource",
					ParamsTemplate: map[string]interface{}{"resource_type": "pod", "resource_name": "{resource_name}", "namespace": "{namespace}"},
				},
				{
					Name: "Fetch Recent Logs", Description: "Get last 100 lines of logs for error analysis",
					RiskLevel: RiskLow, ToolName: "k8s_analyze_logs",
					ParamsTemplate: map[string]interface{}{"pod_name": "{resource_name}", "namespace": "{namespace}", "tail_lines": 100},
				},
				{
					Name: "Restart Pod", Description: "Delete pod to trigger fresh restart (controller will recreate)",
					RiskLevel: RiskMedium, ToolName: "k8s_restart_pod",
					ParamsTemplate: map[string]interface{}{"pod_name": "{resource_name}", "namespace": "{namespace}"},
				},
				{
					Name: "Verify Recovery", Description: "Check pod status after restart",
					RiskLevel: RiskLow, ToolName: "k8s_get_pods",
					ParamsTemplate: map[string]interface{}{"namespace": "{namespace}", "label_selector": ""},
				},
			},
		},
		{
			ID:          "oom_kill_remediation",
			Name:        "OOMKill Remediation",
			Description: "Increase memory limits for OOM-killed pods",
			Steps: []PlaybookStep{
				{
					Name: "Get Current Limits", Description: "Describe deployment to see current memory limits",
					RiskLevel: RiskLow, ToolName: "k8s_describe_resource",
					ParamsTemplate: map[string]interface{}{"resource_type": "deployment", "resource_name": "{resource_name}", "namespace": "{namespace}"},
				},
				{
					Name: "Increase Memory Limit", Description: "Patch deployment to set the container memory limit to 1Gi",
					RiskLevel: RiskHigh, ToolName: "k8s_patch_resource",
					ParamsTemplate: map[string]interface{}{
						"resource_type": "deployment",
						"resource_name": "{resource_name}",
						"namespace":     "{namespace}",
						"patch":         `{"spec":{"template":{"spec":{"containers":[{"name":"{resource_name}","resources":{"limits":{"memory":"1Gi"}}}]}}}}`,
					},
				},
			},
		},
		{
			ID:          "deployment_rollback",
			Name:        "Deployment Rollback",
			Description: "Roll back a failing deployment to the previous stable revision",
			Steps: []PlaybookStep{
				{
					Name: "Get Rollout History", Description: "Show deployment revisions available for rollback",
					RiskLevel: RiskLow, ToolName: "k8s_get_rollout_history",
					ParamsTemplate: map[string]interface{}{"deployment_name": "{resource_name}", "namespace": "{namespace}"},
				},
				{
					Name: "Rollback Deployment", Description: "Undo to previous stable revision",
					RiskLevel: RiskHigh, ToolName: "k8s_rollback_deployment",
					ParamsTemplate: map[string]interface{}{"deployment_name": "{resource_name}", "namespace": "{namespace}"},
				},
				{
					Name: "Check Rollout Status", Description: "Verify rollback completed successfully",
					RiskLevel: RiskLow, ToolName: "k8s_rollout_status",
					ParamsTemplate: map[string]interface{}{"deployment_name": "{resource_name}", "namespace": "{namespace}"},
				},
			},
		},
		{
			ID:          "node_not_ready_remediation",
			Name:        "Node NotReady Remediation",
			Description: "Drain and cordon a NotReady node",
			Steps: []PlaybookStep{
				{
					Name: "Describe Node", Description: "Gather node conditions and events",
					RiskLevel: RiskLow, ToolName: "k8s_describe_resource",
					ParamsTemplate: map[string]interface{}{"resource_type": "node", "resource_name": "{resource_name}", "namespace": ""},
				},
				{
					Name: "Cordon Node", Description: "Prevent new pods from scheduling on this node",
					RiskLevel: RiskMedium, ToolName: "k8s_cordon_node",
					ParamsTemplate: map[string]interface{}{"node_name": "{resource_name}"},
				},
				{
					Name: "Drain Node", Description: "Evict all pods from the node",
					RiskLevel: RiskHigh, ToolName: "k8s_drain_node",
					ParamsTemplate: map[string]interface{}{"node_name": "{resource_name}"},
				},
			},
		},
		{
			ID:          "scale_up_on_load",
			Name:        "Scale Up Under Load",
			Description: "Increase replica count when HPA has hit maxReplicas",
			Steps: []PlaybookStep{
				{
					Name: "Scale Deployment", Description: "Add replicas to handle increased load",
					RiskLevel: RiskMedium, ToolName: "k8s_scale_deployment",
					ParamsTemplate: map[string]interface{}{"deployment": "{resource_name}", "namespace": "{namespace}", "replicas": "{target_replicas}"},
				},
			},
		},
	}
}

// Register adds or replaces a playbook.
func (r *PlaybookRegistry) Register(pb Playbook) {
	if _, exists := r.playbooks[pb.ID]; !exists {
		r.order = append(r.order, pb.ID)
	}
	r.playbooks[pb.ID] = pb
	if r.logger != nil {
		r.logger.Debug("playbook registered", zap.String("playbook_id", pb.ID), zap.String("name", pb.Name))
	}
}

// Get returns a playbook by id.
func (r *PlaybookRegistry) Get(id string) (Playbook, bool) {
	pb, ok := r.playbooks[id]
	return pb, ok
}

// All returns every registered playbook in registration order, for callers (startup tool
// registry validation) that need the full step detail rather than the ListPlaybooks summary.
func (r *PlaybookRegistry) All() []Playbook {
	out := make([]Playbook, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.playbooks[id])
	}
	return out
}

// ListPlaybooks is a diagnostic view of every registered playbook, supplementing the
// operational surface with the original's list_playbooks().
func (r *PlaybookRegistry) ListPlaybooks() []PlaybookSummary {
	out := make([]PlaybookSummary, 0, len(r.order))
	for _, id := range r.order {
		pb := r.playbooks[id]
		out = append(out, PlaybookSummary{
			ID:               pb.ID,
			Name:             pb.Name,
			Description:      pb.Description,
			Steps:            len(pb.Steps),
			RequiresApproval: pb.RequiresApproval(),
		})
	}
	return out
}
