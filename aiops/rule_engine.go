// Package aiops implements the rule-to-playbook matching and playbook execution machinery
// that turns a detected ClusterEvent into a sequence of MCP tool calls.
package aiops

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/sreops/aiops-engine/clustermodel"
)

// Rule maps one condition to one playbook. Grounded on
// original_source/src/aiops/rule_engine.py's Rule dataclass.
type Rule struct {
	ID              string
	Name            string
	Condition       clustermodel.EventKind
	PlaybookID      string
	Enabled         bool
	NamespaceFilter *regexp.Regexp   // nil means "no namespace restriction"
	SeverityFilter  clustermodel.Severity // empty means "no severity restriction"
}

// Matches tests whether an incoming event satisfies this rule: kind equality, optional
// namespace regex search (an empty, cluster-scoped namespace matches only if the regex
// matches the empty string), and an optional severity floor (the event's severity must be
// at least SeverityFilter).
func (r Rule) Matches(event clustermodel.ClusterEvent) bool {
	if !r.Enabled {
		return false
	}
	if event.Kind != r.Condition {
		return false
	}
	if r.NamespaceFilter != nil && !r.NamespaceFilter.MatchString(event.Namespace) {
		return false
	}
	if r.SeverityFilter != "" && !event.Severity.AtLeast(r.SeverityFilter) {
		return false
	}
	return true
}

// Match pairs a fired Rule with the playbook it triggers.
type Match struct {
	Rule       Rule
	PlaybookID string
}

// RuleEngine evaluates a ClusterEvent against every enabled rule and returns every match, in
// registration order — an event can trigger more than one playbook.
type RuleEngine struct {
	logger *zap.Logger
	order  []string
	rules  map[string]Rule
}

// DefaultRules reproduces original_source/src/aiops/rule_engine.py's DEFAULT_RULES, plus a
// fifth binding that the original never carried: rule-005 routes an Alertmanager-sourced
// firing alert to scale_up_on_load, since a webhook-ingested event and a registered playbook
// otherwise share no rule to connect them.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "rule-001", Name: "CrashLoop Auto-Restart", Condition: clustermodel.CrashLoop, PlaybookID: "crash_loop_remediation", Enabled: true, SeverityFilter: clustermodel.SeverityCritical},
		{ID: "rule-002", Name: "OOMKill Memory Increase", Condition: clustermodel.OOMKilled, PlaybookID: "oom_kill_remediation", Enabled: true, SeverityFilter: clustermodel.SeverityCritical},
		{ID: "rule-003", Name: "NotReady Node Evacuation", Condition: clustermodel.NotReadyNode, PlaybookID: "node_not_ready_remediation", Enabled: true, SeverityFilter: clustermodel.SeverityCritical},
		{ID: "rule-004", Name: "Replication Failure Rollback", Condition: clustermodel.ReplicationFailure, PlaybookID: "deployment_rollback", Enabled: true, SeverityFilter: clustermodel.SeverityCritical},
		{ID: "rule-005", Name: "Alertmanager Scale-Up Trigger", Condition: clustermodel.AlertmanagerFiring, PlaybookID: "scale_up_on_load", Enabled: true, SeverityFilter: clustermodel.SeverityCritical},
	}
}

// NewRuleEngine registers the default rule set.
func NewRuleEngine(logger *zap.Logger) *RuleEngine {
	re := &RuleEngine{
		logger: logger,
		rules:  make(map[string]Rule),
	}
	for _, r := range DefaultRules() {
		re.AddRule(r)
	}
	return re
}

// AddRule registers or replaces a rule, preserving first-registration order for ties.
func (re *RuleEngine) AddRule(r Rule) {
	if _, exists := re.rules[r.ID]; !exists {
		re.order = append(re.order, r.ID)
	}
	re.rules[r.ID] = r
	if re.logger != nil {
		re.logger.Info("rule registered", zap.String("rule_id", r.ID), zap.String("name", r.Name), zap.String("playbook", r.PlaybookID))
	}
}

// RemoveRule deregisters a rule by id, reporting whether it existed.
func (re *RuleEngine) RemoveRule(id string) bool {
	if _, ok := re.rules[id]; !ok {
		return false
	}
	delete(re.rules, id)
	for i, existing := range re.order {
		if existing == id {
			re.order = append(re.order[:i], re.order[i+1:]...)
			break
		}
	}
	return true
}

// ListRules returns every registered rule in registration order.
func (re *RuleEngine) ListRules() []Rule {
	out := make([]Rule, 0, len(re.order))
	for _, id := range re.order {
		out = append(out, re.rules[id])
	}
	return out
}

// Evaluate returns every rule that matches event, in registration order. A single event may
// legitimately produce more than one match.
func (re *RuleEngine) Evaluate(event clustermodel.ClusterEvent) []Match {
	var matches []Match
	for _, id := range re.order {
		rule := re.rules[id]
		if rule.Matches(event) {
			if re.logger != nil {
				re.logger.Info("rule matched",
					zap.String("rule_id", rule.ID),
					zap.String("name", rule.Name),
					zap.String("event_kind", string(event.Kind)),
					zap.String("resource", event.ResourceName))
			}
			matches = append(matches, Match{Rule: rule, PlaybookID: rule.PlaybookID})
		}
	}
	return matches
}
