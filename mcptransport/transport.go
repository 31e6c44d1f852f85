// Package mcptransport implements the two MCP wire transports the engine speaks:
// line-delimited JSON-RPC over a child process's standard streams (Subprocess), and
// JSON-RPC framed inside a Server-Sent-Events HTTP response (SSE).
package mcptransport

import (
	"context"
	"errors"

	"github.com/sreops/aiops-engine/mcprpc"
)

// ErrNotConnected is returned by CallTool/ListTools when Start has not succeeded.
var ErrNotConnected = errors.New("mcptransport: transport not connected")

// ErrMismatchedID means a Subprocess reply carried an id that did not match the
// outstanding request — the stream is line-oriented and pairs 1:1, so this is a fatal
// protocol violation for that call.
var ErrMismatchedID = errors.New("mcptransport: response id does not match request")

// ErrNoMatchingResponse means an SSE stream closed before a data record with the
// requested id arrived.
var ErrNoMatchingResponse = errors.New("mcptransport: sse stream closed without matching id")

// Transport speaks JSON-RPC 2.0 to one MCP tool server over one wire variant.
type Transport interface {
	// Start opens the underlying connection (spawns the subprocess, or prepares the
	// HTTP client). It does not perform the MCP handshake.
	Start(ctx context.Context) error

	// Stop tears down the underlying connection; later calls fail with ErrNotConnected.
	// Outstanding Subprocess calls resolve as errors. SSETransport.Stop only closes idle
	// connections, so an SSE call already in flight runs until its stream ends or its ctx
	// is done.
	Stop(ctx context.Context) error

	// Initialize performs the MCP handshake. Safe to call more than once; every call
	// sends the initialize request again.
	Initialize(ctx context.Context, clientInfo mcprpc.ClientInfo) (mcprpc.InitializeResult, error)

	// ListTools returns the tool catalog this server declares.
	ListTools(ctx context.Context) ([]mcprpc.ToolDescription, error)

	// CallTool invokes one tool by name.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (mcprpc.ToolsCallResult, error)

	// IsConnected reports whether the transport is currently usable.
	IsConnected() bool
}
