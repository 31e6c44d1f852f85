package mcptransport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sreops/aiops-engine/mcprpc"
)

// SubprocessTransport frames requests as single-line JSON on the child's stdin and
// reads single-line JSON responses from stdout, keeping stderr as a log channel —
// grounded on chatcli's cli/plugins/plugin.go exec.CommandContext + dual stream pump
// idiom, generalized from one-shot plugin execution to a long-lived, request/response
// child process.
type SubprocessTransport struct {
	Command string
	Args    []string
	Env     []string
	Logger  *zap.Logger

	KillGrace time.Duration

	mu          sync.Mutex // serializes one request/response pair at a time (line-oriented, pairs 1:1)
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdoutLines *bufio.Scanner
	nextID      int64
	connected   atomic.Bool
	initialized bool
}

var _ Transport = (*SubprocessTransport)(nil)

func (t *SubprocessTransport) Start(ctx context.Context) error {
	cmd := exec.Command(t.Command, t.Args...)
	if len(t.Env) > 0 {
		cmd.Env = t.Env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("subprocess transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("subprocess transport: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("subprocess transport: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("subprocess transport: start %s: %w", t.Command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	t.stdoutLines = scanner

	go t.drainStderr(stderr)

	t.connected.Store(true)
	return nil
}

// drainStderr continuously reads the child's stderr and writes it to structured logs —
// never consumed as protocol output.
func (t *SubprocessTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if t.Logger != nil {
			t.Logger.Debug("mcp subprocess stderr", zap.String("command", t.Command), zap.String("line", scanner.Text()))
		}
	}
}

func (t *SubprocessTransport) Stop(ctx context.Context) error {
	if t.cmd == nil || t.cmd.Process == nil {
		t.connected.Store(false)
		return nil
	}
	t.connected.Store(false)
	_ = t.stdin.Close()
	_ = t.cmd.Process.Signal(processTerminateSignal())

	done := make(chan error, 1)
	go func() { done <- t.cmd.Wait() }()

	grace := t.KillGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	select {
	case <-done:
		return nil
	case <-time.After(grace):
		_ = t.cmd.Process.Kill()
		<-done
		return nil
	}
}

func (t *SubprocessTransport) send(ctx context.Context, method string, params interface{}) (mcprpc.Response, error) {
	if !t.connected.Load() {
		return mcprpc.Response{}, ErrNotConnected
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id := atomic.AddInt64(&t.nextID, 1)
	req := mcprpc.Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	line, err := json.Marshal(req)
	if err != nil {
		return mcprpc.Response{}, fmt.Errorf("subprocess transport: marshal request: %w", err)
	}
	line = append(line, '\n')

	type result struct {
		resp mcprpc.Response
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		if _, err := t.stdin.Write(line); err != nil {
			ch <- result{err: fmt.Errorf("subprocess transport: write request: %w", err)}
			return
		}
		if !t.stdoutLines.Scan() {
			err := t.stdoutLines.Err()
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			ch <- result{err: fmt.Errorf("subprocess transport: read response: %w", err)}
			return
		}
		var resp mcprpc.Response
		if err := json.Unmarshal(t.stdoutLines.Bytes(), &resp); err != nil {
			ch <- result{err: fmt.Errorf("subprocess transport: decode response: %w", err)}
			return
		}
		if resp.ID == nil || *resp.ID != id {
			ch <- result{err: ErrMismatchedID}
			return
		}
		ch <- result{resp: resp}
	}()

	select {
	case <-ctx.Done():
		return mcprpc.Response{}, ctx.Err()
	case r := <-ch:
		return r.resp, r.err
	}
}

func (t *SubprocessTransport) Initialize(ctx context.Context, clientInfo mcprpc.ClientInfo) (mcprpc.InitializeResult, error) {
	resp, err := t.send(ctx, "initialize", mcprpc.InitializeParams{
		ProtocolVersion: mcprpc.ProtocolVersion,
		Capabilities:    map[string]interface{}{},
		ClientInfo:      clientInfo,
	})
	if err != nil {
		return mcprpc.InitializeResult{}, err
	}
	if resp.Error != nil {
		return mcprpc.InitializeResult{}, resp.Error
	}
	var result mcprpc.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return mcprpc.InitializeResult{}, fmt.Errorf("subprocess transport: decode initialize result: %w", err)
	}
	t.initialized = true
	return result, nil
}

func (t *SubprocessTransport) ListTools(ctx context.Context) ([]mcprpc.ToolDescription, error) {
	resp, err := t.send(ctx, "tools/list", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	var result mcprpc.ToolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("subprocess transport: decode tools/list result: %w", err)
	}
	return result.Tools, nil
}

func (t *SubprocessTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (mcprpc.ToolsCallResult, error) {
	resp, err := t.send(ctx, "tools/call", mcprpc.ToolsCallParams{Name: name, Arguments: args})
	if err != nil {
		return mcprpc.ToolsCallResult{}, err
	}
	if resp.Error != nil {
		return mcprpc.ToolsCallResult{
			Content: []mcprpc.ContentBlock{{Type: "text", Text: resp.Error.Message}},
			IsError: true,
		}, nil
	}
	var result mcprpc.ToolsCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return mcprpc.ToolsCallResult{}, fmt.Errorf("subprocess transport: decode tools/call result: %w", err)
	}
	return result, nil
}

func (t *SubprocessTransport) IsConnected() bool {
	return t.connected.Load()
}
