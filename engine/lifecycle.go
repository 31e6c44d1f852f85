// Package engine wires the WatchLoop, MCP Manager, RuleEngine, PlaybookRegistry, Executor,
// ApprovalManager, and Alertmanager ingress into one cooperatively-scheduled process,
// grounded on operator/main.go's explicit dependency wiring and chatcli's signal-driven
// shutdown idiom generalized from a single CLI process to a long-running engine.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sreops/aiops-engine/aiops"
	"github.com/sreops/aiops-engine/alertmanager"
	"github.com/sreops/aiops-engine/approval"
	"github.com/sreops/aiops-engine/clustermodel"
	"github.com/sreops/aiops-engine/config"
	"github.com/sreops/aiops-engine/k8s"
	"github.com/sreops/aiops-engine/mcp"
	"github.com/sreops/aiops-engine/metrics"
)

// Engine is the top-level coordinator. It implements k8s.EventHandler and
// alertmanager.EventHandler so both the WatchLoop and the webhook ingress feed the same
// RuleEngine -> Executor pipeline through one HandleEvent entry point.
type Engine struct {
	cfg    *config.EngineConfig
	logger *zap.Logger

	watchLoop *k8s.WatchLoop
	mcpMgr    *mcp.Manager
	rules     *aiops.RuleEngine
	registry  *aiops.PlaybookRegistry
	executor  *aiops.Executor
	approvals *approval.Manager
	notifier  approval.Notifier
	amServer  *alertmanager.Server
	metrics   *metrics.EngineMetrics

	autoRemediation bool
	notifyChannel   string
	shutdownGrace   time.Duration

	runs chanTracker
}

// chanTracker counts in-flight PlaybookRuns so Stop can wait out the shutdown grace period
// before abandoning them.
type chanTracker struct {
	inFlight chan struct{}
}

// New builds an Engine from configuration. It does not start anything.
func New(cfg *config.EngineConfig, version string, logger *zap.Logger) (*Engine, error) {
	clientset, err := k8s.NewClientset(cfg.WatchLoop.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("build kubernetes clientset: %w", err)
	}

	// The metrics-server aggregated API is not deployed in every cluster; its absence is a
	// soft failure that only disables cpu_usage/memory_usage annotation enrichment, not
	// engine startup.
	metricsClient, err := k8s.NewMetricsClient(cfg.WatchLoop.Kubeconfig)
	if err != nil {
		logger.Warn("kubernetes metrics client unavailable, pod resource-usage enrichment disabled", zap.Error(err))
		metricsClient = nil
	}

	mcpMgr, err := mcp.NewManager(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build mcp manager: %w", err)
	}

	notifier := NewLogNotifier(logger)
	approvals := approval.NewManager(notifier, cfg.Approval.Timeout(), logger)
	rules := aiops.NewRuleEngine(logger)
	registry := aiops.NewPlaybookRegistry(logger)
	executor := aiops.NewExecutor(registry, mcpMgr, approvals, notifier, logger)

	e := &Engine{
		cfg:             cfg,
		logger:          logger,
		mcpMgr:          mcpMgr,
		rules:           rules,
		registry:        registry,
		executor:        executor,
		approvals:       approvals,
		notifier:        notifier,
		autoRemediation: cfg.AIOps.AutoRemediation,
		notifyChannel:   cfg.AIOps.NotificationChannel,
		shutdownGrace:   config.DefaultShutdownGrace,
		runs:            chanTracker{inFlight: make(chan struct{}, 4096)},
	}

	e.watchLoop = k8s.NewWatchLoop(clientset, metricsClient, cfg.WatchLoop.Interval(), e, logger)
	e.metrics = metrics.NewEngineMetrics(version, time.Now(), approvals)
	mcpMgr.SetMetrics(e.metrics)
	e.amServer = alertmanager.NewServer(cfg.Alertmanager.ListenAddr, cfg.Alertmanager.WebhookPath, alertmanager.NewHandler(e, logger), logger)

	return e, nil
}

// Start brings up the MCP transports first (tools must be reachable before any playbook can
// run), validates that every registered playbook step's tool resolves against the resulting
// tool registry, then starts the WatchLoop and the Alertmanager ingress.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.mcpMgr.Start(ctx); err != nil {
		return fmt.Errorf("start mcp manager: %w", err)
	}

	if err := e.validatePlaybookTools(); err != nil {
		return err
	}

	e.amServer.Start()

	if e.cfg.WatchLoop.Enabled {
		go e.watchLoop.Run(ctx)
	} else {
		e.logger.Info("watch loop disabled by configuration")
	}

	return nil
}

// Stop shuts down the Alertmanager ingress, waits up to the shutdown grace period for
// in-flight PlaybookRuns to finish, then tears down the MCP transports. Stop does not stop
// the WatchLoop: cancelling the ctx passed to Start is what stops watchLoop.Run, so the
// caller cancels that ctx before calling Stop; Stop only sequences the rest of the teardown.
func (e *Engine) Stop() {
	e.amServer.Stop()
	e.drainInFlightRuns()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	e.mcpMgr.Stop(stopCtx)
}

// validatePlaybookTools is the startup ConfigError check: an unknown tool_name in a registered
// playbook step is fatal, not a runtime surprise discovered mid-run.
func (e *Engine) validatePlaybookTools() error {
	known := make(map[string]struct{})
	for _, name := range e.mcpMgr.ListAllTools() {
		known[name] = struct{}{}
	}

	var unresolved []string
	for _, pb := range e.registry.All() {
		for _, step := range pb.Steps {
			if _, ok := known[step.ToolName]; !ok {
				unresolved = append(unresolved, fmt.Sprintf("%s/%s -> %s", pb.ID, step.Name, step.ToolName))
			}
		}
	}
	if len(unresolved) == 0 {
		return nil
	}
	sort.Strings(unresolved)
	return fmt.Errorf("engine: playbook steps reference unknown tools: %v", unresolved)
}

func (e *Engine) drainInFlightRuns() {
	deadline := time.After(e.shutdownGrace)
	for {
		if len(e.runs.inFlight) == 0 {
			return
		}
		select {
		case <-deadline:
			e.logger.Warn("shutdown grace period elapsed with runs still in flight", zap.Int("remaining", len(e.runs.inFlight)))
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// HandleEvent implements both k8s.EventHandler and alertmanager.EventHandler. Every detected
// or ingested ClusterEvent flows through here: evaluate the RuleEngine, and for each match
// notify the SRE channel and, when auto_remediation is enabled, also launch a playbook run.
func (e *Engine) HandleEvent(ctx context.Context, event clustermodel.ClusterEvent) {
	if e.metrics != nil {
		e.metrics.EventsDetected.WithLabelValues(string(event.Kind), string(event.Severity)).Inc()
	}

	matches := e.rules.Evaluate(event)
	if len(matches) == 0 {
		return
	}

	for _, match := range matches {
		e.notifier.Notify(ctx, e.notifyChannel, fmt.Sprintf(
			"Detected %s (%s) on %s/%s, matched playbook %s",
			event.Kind, event.Severity, event.ResourceKind, event.ResourceName, match.PlaybookID,
		))
		if !e.autoRemediation {
			continue
		}
		e.launchRun(ctx, match, event)
	}
}

func (e *Engine) launchRun(ctx context.Context, match aiops.Match, event clustermodel.ClusterEvent) {
	select {
	case e.runs.inFlight <- struct{}{}:
	default:
		e.logger.Warn("in-flight run tracker saturated, running without tracking", zap.String("playbook_id", match.PlaybookID))
	}

	go func() {
		defer func() {
			select {
			case <-e.runs.inFlight:
			default:
			}
		}()

		run, err := e.executor.Execute(ctx, match.PlaybookID, event, e.notifyChannel, nil)
		if err != nil {
			e.logger.Error("playbook run failed to start", zap.String("playbook_id", match.PlaybookID), zap.Error(err))
			return
		}
		if e.metrics != nil {
			e.metrics.PlaybookRuns.WithLabelValues(match.PlaybookID, string(run.Status)).Inc()
		}
	}()
}

// ProcessApprovalReply feeds an inbound chat/webhook reply through the ApprovalManager,
// returning the response text to send back to the reply's originator, if any.
func (e *Engine) ProcessApprovalReply(text, by string) (string, bool) {
	return e.approvals.ProcessResponse(text, by)
}
