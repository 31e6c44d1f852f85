// Package clustermodel defines the normalized incident vocabulary shared by the
// WatchLoop, the Alertmanager ingress, and the RuleEngine.
package clustermodel

import "time"

// EventKind identifies the shape of an observed incident.
type EventKind string

const (
	CrashLoop          EventKind = "crash_loop"
	OOMKilled          EventKind = "oom_killed"
	NotReadyNode       EventKind = "not_ready_node"
	ReplicationFailure EventKind = "replication_failure"
	AlertmanagerFiring EventKind = "alertmanager_firing"
)

// Severity is monotone per unresolved incident lifetime: a re-fire may only escalate.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// rank orders severities so a floor comparison ("at least Warning") is a simple int compare.
var rank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityCritical: 2,
}

// AtLeast reports whether s meets or exceeds floor.
func (s Severity) AtLeast(floor Severity) bool {
	return rank[s] >= rank[floor]
}

// maxAnnotations bounds how many annotations one ClusterEvent carries.
const maxAnnotations = 16

// ClusterEvent is a normalized incident, produced by the WatchLoop or the Alertmanager
// ingress and consumed once by the RuleEngine. It is never stored long-term.
type ClusterEvent struct {
	Kind         EventKind
	Severity     Severity
	ResourceKind string
	Namespace    string // empty for cluster-scoped resources (e.g. Node)
	ResourceName string
	ObservedAt   time.Time
	Annotations  map[string]string
}

// NewClusterEvent constructs an event, truncating annotations to the declared bound so
// callers never need to check the limit themselves.
func NewClusterEvent(kind EventKind, severity Severity, resourceKind, namespace, resourceName string, observedAt time.Time, annotations map[string]string) ClusterEvent {
	ev := ClusterEvent{
		Kind:         kind,
		Severity:     severity,
		ResourceKind: resourceKind,
		Namespace:    namespace,
		ResourceName: resourceName,
		ObservedAt:   observedAt,
		Annotations:  make(map[string]string, len(annotations)),
	}
	n := 0
	for k, v := range annotations {
		if n >= maxAnnotations {
			break
		}
		ev.Annotations[k] = v
		n++
	}
	return ev
}

// Field resolves a dotted-path reference against the event for playbook step templating.
// Only "annotations.<key>" and the flat top-level fields are supported.
func (e ClusterEvent) Field(path string) (string, bool) {
	switch path {
	case "resource_name":
		return e.ResourceName, true
	case "namespace":
		return e.Namespace, true
	case "resource_kind":
		return e.ResourceKind, true
	case "kind":
		return string(e.Kind), true
	case "severity":
		return string(e.Severity), true
	}
	const prefix = "annotations."
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		v, ok := e.Annotations[path[len(prefix):]]
		return v, ok
	}
	return "", false
}

// KnownIssueKey is the stable identity of one unresolved incident. One entry in the
// WatchLoop's known-issues set corresponds to exactly one unresolved incident of that
// kind on that resource.
type KnownIssueKey struct {
	ResourceKind string
	Namespace    string
	ResourceName string
	Kind         EventKind
}

// KeyOf derives the KnownIssueKey identity carried by a ClusterEvent.
func KeyOf(e ClusterEvent) KnownIssueKey {
	return KnownIssueKey{
		ResourceKind: e.ResourceKind,
		Namespace:    e.Namespace,
		ResourceName: e.ResourceName,
		Kind:         e.Kind,
	}
}
