// Package alertmanager implements the inbound webhook ingress that lets an external
// Alertmanager instance feed firing alerts into the same RuleEngine -> Executor pipeline the
// WatchLoop drives.
package alertmanager

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sreops/aiops-engine/clustermodel"
)

// EventHandler receives every ClusterEvent built from a firing alert. Satisfied by the same
// handler the WatchLoop reports to, without an adapter.
type EventHandler interface {
	HandleEvent(ctx context.Context, event clustermodel.ClusterEvent)
}

// Alert is one entry of an Alertmanager webhook batch.
type Alert struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    string            `json:"startsAt"`
	EndsAt      string            `json:"endsAt"`
}

// WebhookPayload is the batch body Alertmanager POSTs.
type WebhookPayload struct {
	Alerts []Alert `json:"alerts"`
}

// Handler converts firing alerts into ClusterEvents and dispatches them to handler. The
// known-issues bookkeeping the WatchLoop maintains is never touched here — Alertmanager is
// the sole authority on a firing alert's lifecycle.
type Handler struct {
	handler EventHandler
	logger  *zap.Logger
}

// NewHandler builds a webhook Handler.
func NewHandler(handler EventHandler, logger *zap.Logger) *Handler {
	return &Handler{handler: handler, logger: logger}
}

// ServeHTTP implements http.Handler for the webhook path. It responds 200 as soon as the
// batch is accepted; event dispatch happens asynchronously so a slow rule match or playbook
// launch never holds the connection open.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("alertmanager webhook: malformed payload", zap.Error(err))
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	events := make([]clustermodel.ClusterEvent, 0, len(payload.Alerts))
	for _, alert := range payload.Alerts {
		if alert.Status != "firing" {
			continue
		}
		events = append(events, alertToEvent(alert))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})

	if len(events) == 0 {
		return
	}

	go h.dispatch(events)
}

func (h *Handler) dispatch(events []clustermodel.ClusterEvent) {
	// Playbook runs launched by HandleEvent outlive this call, so the context is not
	// cancelled when dispatch returns.
	ctx := context.Background()
	for _, event := range events {
		h.handler.HandleEvent(ctx, event)
	}
}

// alertToEvent builds a ClusterEvent from one firing alert. resource_kind and
// namespace/resource_name are drawn from the alert's labels; the first of pod, deployment, or
// node present determines both the resource kind and name. A label the payload omits leaves
// the corresponding field empty rather than failing the whole batch.
func alertToEvent(alert Alert) clustermodel.ClusterEvent {
	namespace := alert.Labels["namespace"]

	resourceKind, resourceName := "", ""
	switch {
	case alert.Labels["pod"] != "":
		resourceKind, resourceName = "Pod", alert.Labels["pod"]
	case alert.Labels["deployment"] != "":
		resourceKind, resourceName = "Deployment", alert.Labels["deployment"]
	case alert.Labels["node"] != "":
		resourceKind, resourceName = "Node", alert.Labels["node"]
	}

	return clustermodel.NewClusterEvent(
		clustermodel.AlertmanagerFiring,
		clustermodel.SeverityCritical,
		resourceKind,
		namespace,
		resourceName,
		time.Now(),
		alert.Annotations,
	)
}
