// Package approval implements the human-in-the-loop gate that MEDIUM and HIGH risk playbook
// steps must pass through before execution — grounded on
// original_source/src/services/approval_manager.py's ApprovalManager, translated from a
// Redis-backed store to an in-memory bounded store (chatcli k8s/store.go's
// sync.RWMutex-guarded map idiom) since this engine keeps no external state store.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the lifecycle state of one PendingApproval.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
	StatusExecuted Status = "executed"
)

// riskEmoji mirrors the original's risk_emoji map used in approval_message().
var riskEmoji = map[string]string{"low": "🟡", "medium": "🟠", "high": "🔴"}

// Request describes one action awaiting human sign-off.
type Request struct {
	ToolName      string
	ToolParams    map[string]interface{}
	RiskLevel     string // "low" | "medium" | "high"
	Description   string
	RequestedBy   string
	ChannelTarget string
	PlaybookRunID string
	IncidentID    string
}

// PendingApproval is a stored, in-flight approval request. Grounded on the original's
// PendingApproval dataclass.
type PendingApproval struct {
	ApprovalID    string
	ShortID       string
	ToolName      string
	ToolParams    map[string]interface{}
	RiskLevel     string
	Description   string
	RequestedBy   string
	ChannelTarget string
	PlaybookRunID string
	IncidentID    string
	RequestedAt   time.Time
	ExpiresAt     time.Time
	Status        Status

	decision chan Decision
}

// Decision is the resolved outcome of a PendingApproval, delivered to whoever is blocked on
// RequestApproval.
type Decision struct {
	Approved bool
	Rejected bool
	Expired  bool
	By       string
}

// ApprovalMessage renders the exact Markdown notification format of the original's
// PendingApproval.approval_message(), including the HIGH-risk warning line.
func (p PendingApproval) ApprovalMessage(timeout time.Duration) string {
	params, _ := json.MarshalIndent(p.ToolParams, "", "  ")
	var b strings.Builder
	if p.RiskLevel == "high" {
		b.WriteString("⚠️ **HIGH RISK ACTION — Review carefully before approving**\n\n")
	}
	fmt.Fprintf(&b, "%s **Approval Required** [%s]\n\n", riskEmoji[p.RiskLevel], strings.ToUpper(p.RiskLevel))
	fmt.Fprintf(&b, "**Action:** %s\n", p.Description)
	fmt.Fprintf(&b, "**Tool:** `%s`\n", p.ToolName)
	fmt.Fprintf(&b, "**Parameters:** `%s`\n\n", string(params))
	fmt.Fprintf(&b, "Reply with **`approve %s`** to proceed or **`reject %s`** to cancel.\n", p.ShortID, p.ShortID)
	fmt.Fprintf(&b, "This request expires in %d minutes.", int(timeout.Minutes()))
	return b.String()
}

// Notifier delivers an approval prompt (or a resolution message) to a channel.
type Notifier interface {
	Notify(ctx context.Context, channelTarget, message string) error
}

// A reply is an approval command only when the whole message, apart from surrounding
// whitespace, is the verb followed by the 8-hex-char short id.
var approveRe = regexp.MustCompile(`(?i)^\s*(?:approve|yes|confirm)\s+([a-f0-9]{8})\s*$`)
var rejectRe = regexp.MustCompile(`(?i)^\s*(?:reject|no|cancel)\s+([a-f0-9]{8})\s*$`)

// Manager holds every pending approval and resolves them either by reply text matching a
// short id, or by TTL expiry.
type Manager struct {
	logger   *zap.Logger
	notifier Notifier
	timeout  time.Duration

	mu       sync.Mutex
	byShort  map[string]*PendingApproval
}

// NewManager builds an ApprovalManager with the given per-request TTL.
func NewManager(notifier Notifier, timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &Manager{
		logger:   logger,
		notifier: notifier,
		timeout:  timeout,
		byShort:  make(map[string]*PendingApproval),
	}
}

// RequestApproval registers a new pending approval, sends the notification, and blocks until
// a decision arrives, the TTL elapses, or ctx is cancelled.
func (m *Manager) RequestApproval(ctx context.Context, req Request) (Decision, error) {
	now := time.Now()

	pending := &PendingApproval{
		ToolName:      req.ToolName,
		ToolParams:    req.ToolParams,
		RiskLevel:     req.RiskLevel,
		Description:   req.Description,
		RequestedBy:   req.RequestedBy,
		ChannelTarget: req.ChannelTarget,
		PlaybookRunID: req.PlaybookRunID,
		IncidentID:    req.IncidentID,
		RequestedAt:   now,
		ExpiresAt:     now.Add(m.timeout),
		Status:        StatusPending,
		decision:      make(chan Decision, 1),
	}

	// A shortID is only the first 8 hex characters of a uuid, so a collision with another
	// still-live approval is rare but possible. Regenerate rather than clobber the earlier
	// waiter's entry.
	m.mu.Lock()
	var id, shortID string
	for {
		id = uuid.New().String()
		shortID = id[:8]
		if _, live := m.byShort[shortID]; !live {
			break
		}
	}
	pending.ApprovalID = id
	pending.ShortID = shortID
	m.byShort[shortID] = pending
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Info("approval requested", zap.String("approval_id", id), zap.String("tool", req.ToolName), zap.String("risk", req.RiskLevel))
	}

	if m.notifier != nil {
		if err := m.notifier.Notify(ctx, req.ChannelTarget, pending.ApprovalMessage(m.timeout)); err != nil && m.logger != nil {
			m.logger.Warn("approval notify failed", zap.String("approval_id", id), zap.Error(err))
		}
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case dec := <-pending.decision:
		return dec, nil
	case <-timer.C:
		m.mu.Lock()
		delete(m.byShort, shortID)
		m.mu.Unlock()
		pending.Status = StatusExpired
		return Decision{Expired: true}, nil
	case <-ctx.Done():
		m.mu.Lock()
		delete(m.byShort, shortID)
		m.mu.Unlock()
		return Decision{}, ctx.Err()
	}
}

// ProcessResponse parses a chat reply for an approve/reject command and resolves the
// matching pending approval, returning the response text to relay back to the channel, or
// ("", false) if the text carried no recognizable command.
func (m *Manager) ProcessResponse(text, by string) (string, bool) {
	approveMatch := approveRe.FindStringSubmatch(text)
	rejectMatch := rejectRe.FindStringSubmatch(text)
	if approveMatch == nil && rejectMatch == nil {
		return "", false
	}

	var shortID string
	approved := approveMatch != nil
	if approved {
		shortID = approveMatch[1]
	} else {
		shortID = rejectMatch[1]
	}

	m.mu.Lock()
	pending, ok := m.byShort[shortID]
	if ok {
		delete(m.byShort, shortID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Sprintf("⚠️ No pending approval found for ID `%s`. It may have expired.", shortID), true
	}

	if approved {
		pending.Status = StatusApproved
		pending.decision <- Decision{Approved: true, By: by}
		return fmt.Sprintf("✅ **%s** approved by %s, executing now.", pending.Description, by), true
	}

	pending.Status = StatusRejected
	pending.decision <- Decision{Rejected: true, By: by}
	return fmt.Sprintf("❌ Action **%s** rejected by %s.", pending.Description, by), true
}

// ListPending returns a snapshot of every approval still awaiting a decision, supplementing
// the operational surface with the original's list_pending().
func (m *Manager) ListPending() []PendingApproval {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PendingApproval, 0, len(m.byShort))
	for _, p := range m.byShort {
		out = append(out, *p)
	}
	return out
}

// PendingCount reports how many approvals are currently outstanding, for the
// sre_approvals_pending gauge.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byShort)
}
