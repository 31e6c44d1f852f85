// Package config loads the engine's YAML configuration document, applying defaults the
// same way chatcli's persona loader unmarshals-then-defaults its documents.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultWatchLoopInterval    = 30 * time.Second
	DefaultApprovalTimeout      = 900 * time.Second
	DefaultToolCallTimeout      = 30 * time.Second
	DefaultShutdownGrace        = 30 * time.Second
	DefaultSubprocessKillGrace  = 5 * time.Second
	DefaultAlertmanagerAddr     = ":9096"
	DefaultAlertmanagerWebhook  = "/api/webhook/alertmanager"
)

// MCPServerConfig describes one entry of the mcp.servers catalog.
type MCPServerConfig struct {
	Type    string            `yaml:"type"` // "stdio" | "sse"
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	URL     string            `yaml:"url"`
	APIKey  string            `yaml:"apiKey"`
	Env     map[string]string `yaml:"env"`
}

// WatchLoopConfig is the watchloop.* key group.
type WatchLoopConfig struct {
	Enabled          bool   `yaml:"enabled"`
	IntervalSeconds  int    `yaml:"interval_seconds"`
	Kubeconfig       string `yaml:"kubeconfig"`
	interval         time.Duration
}

// Interval returns the parsed poll interval, applying the default when unset.
func (w WatchLoopConfig) Interval() time.Duration {
	if w.interval > 0 {
		return w.interval
	}
	return DefaultWatchLoopInterval
}

// AIOpsConfig is the aiops.* key group.
type AIOpsConfig struct {
	NotificationChannel string `yaml:"notification_channel"`
	AutoRemediation     bool   `yaml:"auto_remediation"`
}

// ApprovalConfig is the approval.* key group.
type ApprovalConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the configured TTL, applying the package default when unset.
func (a ApprovalConfig) Timeout() time.Duration {
	if a.TimeoutSeconds > 0 {
		return time.Duration(a.TimeoutSeconds) * time.Second
	}
	return DefaultApprovalTimeout
}

// AlertmanagerConfig configures the inbound webhook HTTP server.
type AlertmanagerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	WebhookPath string `yaml:"webhook_path"`
}

// EngineConfig is the top-level document loaded at startup.
type EngineConfig struct {
	WatchLoop     WatchLoopConfig            `yaml:"watchloop"`
	AIOps         AIOpsConfig                `yaml:"aiops"`
	Approval      ApprovalConfig             `yaml:"approval"`
	Alertmanager  AlertmanagerConfig         `yaml:"alertmanager"`
	MCP           MCPConfig                  `yaml:"mcp"`
}

// MCPConfig configures the tool server catalog and the per-call timeout every CallTool
// invocation is bounded by, regardless of transport.
type MCPConfig struct {
	Servers            map[string]MCPServerConfig `yaml:"servers"`
	CallTimeoutSeconds int                        `yaml:"call_timeout_seconds"`
}

// CallTimeout returns the configured per-tool-call timeout, applying the package default when
// unset.
func (m MCPConfig) CallTimeout() time.Duration {
	if m.CallTimeoutSeconds > 0 {
		return time.Duration(m.CallTimeoutSeconds) * time.Second
	}
	return DefaultToolCallTimeout
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} references against the process environment, the same
// pattern chatcli's config layer relies on via .env-seeded environment variables.
func expandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		if v, ok := os.LookupEnv(string(name)); ok {
			return []byte(v)
		}
		return m
	})
}

// Load reads and parses the engine configuration document at path, applying defaults for
// every zero-valued field the way chatcli's pkg/persona/loader.go layers YAML defaults on
// top of an Unmarshal.
func Load(path string) (*EngineConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read engine config %s: %w", path, err)
	}

	var cfg EngineConfig
	if err := yaml.Unmarshal(expandEnv(raw), &cfg); err != nil {
		return nil, fmt.Errorf("parse engine config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid engine config %s: %w", path, err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *EngineConfig) {
	if cfg.WatchLoop.IntervalSeconds > 0 {
		cfg.WatchLoop.interval = time.Duration(cfg.WatchLoop.IntervalSeconds) * time.Second
	} else {
		cfg.WatchLoop.interval = DefaultWatchLoopInterval
	}
	if cfg.Alertmanager.ListenAddr == "" {
		cfg.Alertmanager.ListenAddr = DefaultAlertmanagerAddr
	}
	if cfg.Alertmanager.WebhookPath == "" {
		cfg.Alertmanager.WebhookPath = DefaultAlertmanagerWebhook
	}
	if cfg.AIOps.NotificationChannel == "" {
		cfg.AIOps.NotificationChannel = "log:sre"
	}
}

func validate(cfg *EngineConfig) error {
	for name, srv := range cfg.MCP.Servers {
		switch srv.Type {
		case "stdio":
			if srv.Command == "" {
				return fmt.Errorf("mcp server %q: stdio transport requires command", name)
			}
		case "sse":
			if srv.URL == "" {
				return fmt.Errorf("mcp server %q: sse transport requires url", name)
			}
		case "":
			return fmt.Errorf("mcp server %q: missing type", name)
		default:
			return fmt.Errorf("mcp server %q: unsupported transport type %q", name, srv.Type)
		}
	}
	return nil
}
