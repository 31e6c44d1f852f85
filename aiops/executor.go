package aiops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sreops/aiops-engine/approval"
	"github.com/sreops/aiops-engine/clustermodel"
	"github.com/sreops/aiops-engine/mcprpc"
)

// maxAnnouncedOutputLen bounds how much of a step's tool output is echoed to channel_target;
// longer output is elided rather than flooding the channel.
const maxAnnouncedOutputLen = 400

// ToolCaller is the subset of mcp.Manager the executor needs to run one step. Accepting an
// interface here keeps aiops independent of the transport/manager wiring details.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (mcprpc.ToolsCallResult, error)
}

// Approver is the subset of approval.Manager the executor needs to gate a MEDIUM/HIGH step.
type Approver interface {
	RequestApproval(ctx context.Context, req approval.Request) (approval.Decision, error)
}

// Executor runs one playbook's steps sequentially against a specific incident, routing every
// step above LOW risk through an Approver first. Grounded on
// original_source/src/aiops/playbooks.py's implicit executor contract (PlaybookRun's
// current_step/status/step_outputs fields) and on
// operator/controllers/remediation_controller.go's step-dispatch loop, de-CRD-ified into a
// plain sequential Go function instead of a reconcile-and-requeue state machine.
type Executor struct {
	logger    *zap.Logger
	registry  *PlaybookRegistry
	tools     ToolCaller
	approvals Approver
	notifier  approval.Notifier // optional: announces run start, per-step progress, and terminal outcomes
}

// NewExecutor wires a PlaybookRegistry to the tool-calling and approval-gating collaborators.
func NewExecutor(registry *PlaybookRegistry, tools ToolCaller, approvals Approver, notifier approval.Notifier, logger *zap.Logger) *Executor {
	return &Executor{logger: logger, registry: registry, tools: tools, approvals: approvals, notifier: notifier}
}

// Execute runs playbookID against event, blocking until the run reaches a terminal status.
// The caller is expected to invoke this in its own goroutine per run, since it can block for
// as long as the approval TTL when a step requires human sign-off.
func (e *Executor) Execute(ctx context.Context, playbookID string, event clustermodel.ClusterEvent, notifyChannel string, extra map[string]string) (*PlaybookRun, error) {
	pb, ok := e.registry.Get(playbookID)
	if !ok {
		return nil, fmt.Errorf("aiops: unknown playbook %q", playbookID)
	}

	run := &PlaybookRun{
		RunID:         uuid.New().String(),
		PlaybookID:    playbookID,
		Event:         event,
		NotifyChannel: notifyChannel,
		Status:        RunRunning,
		StartedAt:     time.Now(),
	}
	e.notify(ctx, run, fmt.Sprintf("▶️ Playbook **%s** started for %s/%s (run %s).", pb.Name, event.Namespace, event.ResourceName, run.RunID))

	for _, step := range pb.Steps {
		if e.logger != nil {
			e.logger.Info("playbook step starting", zap.String("run_id", run.RunID), zap.String("step", step.Name), zap.String("risk", string(step.RiskLevel)))
		}
		e.notify(ctx, run, fmt.Sprintf("▶ Step **%s** starting (%s).", step.Name, step.ToolName))
		params, missing := step.ResolveParams(event, extra)
		if len(missing) > 0 {
			reason := fmt.Sprintf("missing required parameter(s): %s", strings.Join(missing, ", "))
			run.recordStep(StepOutcome{StepName: step.Name, ToolName: step.ToolName, Success: false, Error: reason})
			run.finish(RunFailed, reason)
			e.notify(ctx, run, fmt.Sprintf("❌ Step **%s** failed: %s", step.Name, reason))
			e.announce(ctx, run, pb)
			return run, nil
		}

		if step.RiskLevel != RiskLow {
			run.Status = RunAwaitingApproval
			decision, err := e.approvals.RequestApproval(ctx, approval.Request{
				ToolName:      step.ToolName,
				ToolParams:    params,
				RiskLevel:     string(step.RiskLevel),
				Description:   step.Description,
				RequestedBy:   "auto",
				ChannelTarget: notifyChannel,
				PlaybookRunID: run.RunID,
			})
			if err != nil {
				run.recordStep(StepOutcome{StepName: step.Name, ToolName: step.ToolName, Success: false, Error: err.Error()})
				run.finish(RunFailed, err.Error())
				e.notify(ctx, run, fmt.Sprintf("✋ Step **%s** could not request approval: %s", step.Name, err.Error()))
				e.announce(ctx, run, pb)
				return run, nil
			}
			if decision.Expired {
				run.recordStep(StepOutcome{StepName: step.Name, ToolName: step.ToolName, Success: false, Rejected: true, Error: "approval expired"})
				run.finish(RunExpired, "approval expired")
				e.notify(ctx, run, fmt.Sprintf("⌛ Step **%s** approval expired.", step.Name))
				e.announce(ctx, run, pb)
				return run, nil
			}
			if decision.Rejected {
				run.recordStep(StepOutcome{StepName: step.Name, ToolName: step.ToolName, Success: false, Rejected: true})
				run.finish(RunFailed, fmt.Sprintf("rejected by %s", decision.By))
				e.notify(ctx, run, fmt.Sprintf("🚫 Step **%s** rejected by %s.", step.Name, decision.By))
				e.announce(ctx, run, pb)
				return run, nil
			}
			run.Status = RunRunning
		}

		result, err := e.tools.CallTool(ctx, step.ToolName, params)
		if err != nil {
			run.recordStep(StepOutcome{StepName: step.Name, ToolName: step.ToolName, Success: false, Approved: step.RiskLevel != RiskLow, Error: err.Error()})
			run.finish(RunFailed, err.Error())
			e.notify(ctx, run, fmt.Sprintf("❌ Step **%s** errored: %s", step.Name, err.Error()))
			e.announce(ctx, run, pb)
			return run, nil
		}
		if result.IsError {
			// Open question (tool failure after an approved step): recorded as a Failure
			// outcome, never silently downgraded to a Rejected one.
			errText := "tool reported an error"
			if len(result.Content) > 0 {
				errText = result.Content[0].Text
			}
			run.recordStep(StepOutcome{StepName: step.Name, ToolName: step.ToolName, Success: false, Approved: step.RiskLevel != RiskLow, Error: errText})
			run.finish(RunFailed, errText)
			e.notify(ctx, run, fmt.Sprintf("❌ Step **%s** failed: %s", step.Name, abbreviate(errText)))
			e.announce(ctx, run, pb)
			return run, nil
		}

		output := ""
		if len(result.Content) > 0 {
			output = result.Content[0].Text
		}
		run.recordStep(StepOutcome{StepName: step.Name, ToolName: step.ToolName, Success: true, Approved: step.RiskLevel != RiskLow, Output: output})
		e.notify(ctx, run, fmt.Sprintf("✔ Step **%s** done: %s", step.Name, abbreviate(output)))
	}

	run.finish(RunCompleted, "")
	e.announce(ctx, run, pb)
	return run, nil
}

// abbreviate elides tool output beyond maxAnnouncedOutputLen so a chatty step doesn't flood
// channel_target.
func abbreviate(s string) string {
	if s == "" {
		return "(no output)"
	}
	if len(s) <= maxAnnouncedOutputLen {
		return s
	}
	return s[:maxAnnouncedOutputLen] + "… (truncated)"
}

// notify posts a per-step or run-start line to channel_target. It never fails the run; delivery
// errors are logged the same way announce's terminal-line failures are.
func (e *Executor) notify(ctx context.Context, run *PlaybookRun, message string) {
	if e.notifier == nil || run.NotifyChannel == "" {
		return
	}
	if err := e.notifier.Notify(ctx, run.NotifyChannel, message); err != nil && e.logger != nil {
		e.logger.Warn("run notification failed", zap.String("run_id", run.RunID), zap.Error(err))
	}
}

func (e *Executor) announce(ctx context.Context, run *PlaybookRun, pb Playbook) {
	if e.notifier == nil || run.NotifyChannel == "" {
		return
	}
	var msg string
	switch run.Status {
	case RunCompleted:
		msg = fmt.Sprintf("✅ Playbook **%s** completed for %s/%s.", pb.Name, run.Event.Namespace, run.Event.ResourceName)
	case RunFailed:
		msg = fmt.Sprintf("❌ Playbook **%s** failed for %s/%s: %s", pb.Name, run.Event.Namespace, run.Event.ResourceName, run.Error)
	case RunCancelled:
		msg = fmt.Sprintf("🚫 Playbook **%s** cancelled for %s/%s: %s", pb.Name, run.Event.Namespace, run.Event.ResourceName, run.Error)
	case RunExpired:
		msg = fmt.Sprintf("⌛ Playbook **%s** expired waiting for approval on %s/%s.", pb.Name, run.Event.Namespace, run.Event.ResourceName)
	default:
		return
	}
	if err := e.notifier.Notify(ctx, run.NotifyChannel, msg); err != nil && e.logger != nil {
		e.logger.Warn("run announcement failed", zap.String("run_id", run.RunID), zap.Error(err))
	}
}
