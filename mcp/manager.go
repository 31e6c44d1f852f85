// Package mcp coordinates a catalog of MCP tool servers, one wire transport per server,
// behind a single flat tool registry — grounded on original_source/src/mcp/mcp_manager.py's
// MCPManager.
package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sreops/aiops-engine/config"
	"github.com/sreops/aiops-engine/mcprpc"
	"github.com/sreops/aiops-engine/mcptransport"
)

// ClientInfo is sent to every server on initialize.
var ClientInfo = mcprpc.ClientInfo{Name: "aiops-engine", Version: "0.1.0"}

// ServerInfo is one diagnostic entry of GetServerInfo, mirroring the original's
// get_server_info() shape.
type ServerInfo struct {
	Type      string   `json:"type"`
	Connected bool     `json:"connected"`
	Tools     []string `json:"tools"`
}

// ToolCallRecorder observes the outcome and latency of one completed CallTool invocation,
// satisfied by metrics.EngineMetrics.RecordToolCall. Manager accepts this narrow interface
// rather than the concrete metrics type so tool dispatch stays decoupled from the metrics
// package's registration machinery.
type ToolCallRecorder interface {
	RecordToolCall(tool, outcome string, duration time.Duration)
}

// Manager owns every configured MCP server's transport, tracks which tools each server
// declares, and routes CallTool by name through a flat registry — a tool name appearing in
// two servers is rejected at Start.
type Manager struct {
	logger      *zap.Logger
	callTimeout time.Duration
	metrics     ToolCallRecorder

	mu          sync.RWMutex
	transports  map[string]mcptransport.Transport
	serverTypes map[string]string
	toolServers map[string]string
	serverTools map[string][]string
}

// SetMetrics attaches a ToolCallRecorder so every subsequent CallTool records
// sre_tool_calls_total/sre_tool_call_duration_seconds. Optional; a Manager with no recorder
// attached simply skips instrumentation.
func (m *Manager) SetMetrics(recorder ToolCallRecorder) {
	m.metrics = recorder
}

// NewManager builds transports for every configured server without starting them.
func NewManager(cfg *config.EngineConfig, logger *zap.Logger) (*Manager, error) {
	callTimeout := cfg.MCP.CallTimeout()
	if callTimeout <= 0 {
		callTimeout = config.DefaultToolCallTimeout
	}

	m := &Manager{
		logger:      logger,
		callTimeout: callTimeout,
		transports:  make(map[string]mcptransport.Transport),
		serverTypes: make(map[string]string),
		toolServers: make(map[string]string),
		serverTools: make(map[string][]string),
	}

	for name, srv := range cfg.MCP.Servers {
		var tr mcptransport.Transport
		switch srv.Type {
		case "stdio":
			env := make([]string, 0, len(srv.Env))
			for k, v := range srv.Env {
				env = append(env, k+"="+v)
			}
			tr = &mcptransport.SubprocessTransport{
				Command:   srv.Command,
				Args:      srv.Args,
				Env:       env,
				Logger:    logger.Named(name),
				KillGrace: config.DefaultSubprocessKillGrace,
			}
		case "sse":
			tr = &mcptransport.SSETransport{
				URL:    srv.URL,
				APIKey: srv.APIKey,
				Logger: logger.Named(name),
			}
		default:
			return nil, fmt.Errorf("mcp manager: server %q: unsupported transport type %q", name, srv.Type)
		}
		m.transports[name] = tr
		m.serverTypes[name] = srv.Type
	}
	return m, nil
}

// Start opens every server's transport, performs the initialize/tools-list handshake, and
// builds the flat tool registry. A server that fails to start is logged and skipped rather
// than aborting the whole engine, matching the original's per-server try/except in start().
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, tr := range m.transports {
		if err := tr.Start(ctx); err != nil {
			m.logger.Error("mcp server failed to start", zap.String("server", name), zap.Error(err))
			continue
		}
		if _, err := tr.Initialize(ctx, ClientInfo); err != nil {
			m.logger.Error("mcp server failed to initialize", zap.String("server", name), zap.Error(err))
			continue
		}
		tools, err := tr.ListTools(ctx)
		if err != nil {
			m.logger.Error("mcp server failed to list tools", zap.String("server", name), zap.Error(err))
			continue
		}

		names := make([]string, 0, len(tools))
		for _, tool := range tools {
			if owner, exists := m.toolServers[tool.Name]; exists {
				return fmt.Errorf("mcp manager: tool %q declared by both %q and %q", tool.Name, owner, name)
			}
			m.toolServers[tool.Name] = name
			names = append(names, tool.Name)
		}
		m.serverTools[name] = names
		m.logger.Info("mcp server ready", zap.String("server", name), zap.Int("tools", len(names)))
	}
	return nil
}

// Stop tears down every server's transport, continuing past individual failures so one
// stuck server cannot block the others from being asked to shut down.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, tr := range m.transports {
		if err := tr.Stop(ctx); err != nil {
			m.logger.Warn("mcp server stop error", zap.String("server", name), zap.Error(err))
		}
	}
}

// CallTool routes a tool invocation to the server that declared it. An unknown tool name
// surfaces as a content-level error, mirroring the original's {"content": [...], "isError":
// true} convention rather than a bare Go error, since a caller (a playbook step) treats both
// identically.
func (m *Manager) CallTool(ctx context.Context, name string, args map[string]interface{}) (mcprpc.ToolsCallResult, error) {
	m.mu.RLock()
	serverName, ok := m.toolServers[name]
	var tr mcptransport.Transport
	if ok {
		tr = m.transports[serverName]
	}
	m.mu.RUnlock()

	if !ok {
		return mcprpc.ToolsCallResult{
			Content: []mcprpc.ContentBlock{{Type: "text", Text: fmt.Sprintf("unknown tool: %s", name)}},
			IsError: true,
		}, nil
	}
	if tr == nil || !tr.IsConnected() {
		return mcprpc.ToolsCallResult{
			Content: []mcprpc.ContentBlock{{Type: "text", Text: fmt.Sprintf("server %q for tool %q is not connected", serverName, name)}},
			IsError: true,
		}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	start := time.Now()
	result, err := tr.CallTool(callCtx, name, args)
	outcome := "success"
	if err != nil || result.IsError {
		outcome = "error"
	}
	if m.metrics != nil {
		m.metrics.RecordToolCall(name, outcome, time.Since(start))
	}

	if err != nil {
		return mcprpc.ToolsCallResult{
			Content: []mcprpc.ContentBlock{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}
	return result, nil
}

// ListAllTools returns every tool name known across every server.
func (m *Manager) ListAllTools() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.toolServers))
	for name := range m.toolServers {
		names = append(names, name)
	}
	return names
}

// GetServerInfo is a diagnostic view of every configured server's connection state and tool
// catalog, supplementing the operational surface with the original's get_server_info().
func (m *Manager) GetServerInfo() map[string]ServerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := make(map[string]ServerInfo, len(m.transports))
	for name, tr := range m.transports {
		info[name] = ServerInfo{
			Type:      m.serverTypes[name],
			Connected: tr.IsConnected(),
			Tools:     m.serverTools[name],
		}
	}
	return info
}
