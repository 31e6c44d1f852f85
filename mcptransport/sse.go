package mcptransport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sreops/aiops-engine/mcprpc"
)

// SSETransport posts a JSON-RPC request to an HTTP endpoint and scans the
// Server-Sent-Events response for the `data: ` record whose id matches, ignoring
// intervening `notifications/message` records — grounded on chatcli's
// llm/openai_responses/openai_responses_client.go::processStreamResponse bufio.Scanner
// idiom, generalized from a chat-completion delta stream to a single-shot JSON-RPC
// response scan for a single JSON-RPC id amid interleaved progress notifications.
type SSETransport struct {
	URL    string
	APIKey string
	Logger *zap.Logger

	httpClient  *http.Client
	nextID      int64
	initialized bool
	connected   atomic.Bool
}

var _ Transport = (*SSETransport)(nil)

func (t *SSETransport) Start(ctx context.Context) error {
	t.httpClient = &http.Client{
		Timeout: 300 * time.Second, // long read timeout to tolerate slow tool servers
	}
	t.connected.Store(true)
	return nil
}

func (t *SSETransport) Stop(ctx context.Context) error {
	t.connected.Store(false)
	if t.httpClient != nil {
		t.httpClient.CloseIdleConnections()
	}
	return nil
}

func (t *SSETransport) send(ctx context.Context, method string, params interface{}) (mcprpc.Response, error) {
	if !t.connected.Load() {
		return mcprpc.Response{}, ErrNotConnected
	}

	id := atomic.AddInt64(&t.nextID, 1)
	req := mcprpc.Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return mcprpc.Response{}, fmt.Errorf("sse transport: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return mcprpc.Response{}, fmt.Errorf("sse transport: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	httpReq.Header.Set("Content-Type", "application/json")
	if t.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return mcprpc.Response{}, fmt.Errorf("sse transport: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return mcprpc.Response{}, fmt.Errorf("sse transport: http status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		var record mcprpc.Response
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			if t.Logger != nil {
				t.Logger.Warn("sse transport: invalid json line", zap.String("payload", payload))
			}
			continue
		}
		if record.IsNotification() {
			// notifications/message progress record — ignore and keep scanning.
			continue
		}
		if *record.ID != id {
			continue
		}
		return record, nil
	}
	if err := scanner.Err(); err != nil {
		return mcprpc.Response{}, fmt.Errorf("sse transport: stream read: %w", err)
	}
	return mcprpc.Response{}, ErrNoMatchingResponse
}

func (t *SSETransport) Initialize(ctx context.Context, clientInfo mcprpc.ClientInfo) (mcprpc.InitializeResult, error) {
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
		return mcprpc.InitializeResult{}, fmt.Errorf("sse transport: decode initialize result: %w", err)
	}
	t.initialized = true
	return result, nil
}

func (t *SSETransport) ListTools(ctx context.Context) ([]mcprpc.ToolDescription, error) {
	resp, err := t.send(ctx, "tools/list", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	var result mcprpc.ToolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("sse transport: decode tools/list result: %w", err)
	}
	return result.Tools, nil
}

func (t *SSETransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (mcprpc.ToolsCallResult, error) {
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
		return mcprpc.ToolsCallResult{}, fmt.Errorf("sse transport: decode tools/call result: %w", err)
	}
	return result, nil
}

func (t *SSETransport) IsConnected() bool {
	return t.connected.Load() && t.httpClient != nil
}
