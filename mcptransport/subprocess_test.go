package mcptransport

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sreops/aiops-engine/mcprpc"
)

// echoScript is a tiny line-oriented JSON-RPC server used to exercise SubprocessTransport
// without depending on any real MCP tool binary. It reads one JSON-RPC request per line
// from stdin and replies with a canned result keyed by method, mirroring the shapes a real
// MCP tool server would emit.
const echoScript = `
import json
import sys

for line in sys.stdin:
    line = line.strip()
    if not line:
        continue
    req = json.loads(line)
    method = req.get("method")
    if method == "initialize":
        result = {"protocolVersion": "2024-11-05", "capabilities": {}, "serverInfo": {"name": "echo", "version": "0.1"}}
    elif method == "tools/list":
        result = {"tools": [{"name": "k8s_get_pods", "description": "list pods"}]}
    elif method == "tools/call":
        result = {"content": [{"type": "text", "text": "ok"}], "isError": False}
    else:
        result = {}
    resp = {"jsonrpc": "2.0", "id": req["id"], "result": result}
    sys.stdout.write(json.dumps(resp) + "\n")
    sys.stdout.flush()
`

func requirePython(t *testing.T) string {
	t.Helper()
	for _, candidate := range []string{"python3", "python"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path
		}
	}
	t.Skip("no python interpreter available to run the subprocess transport fixture")
	return ""
}

func writeEchoScript(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "echo-*.py")
	require.NoError(t, err)
	_, err = f.WriteString(echoScript)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestSubprocessTransportFullRoundTrip(t *testing.T) {
	python := requirePython(t)
	script := writeEchoScript(t)

	tr := &SubprocessTransport{
		Command:   python,
		Args:      []string{script},
		KillGrace: time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, tr.Start(ctx))
	require.True(t, tr.IsConnected())
	defer tr.Stop(ctx)

	initResult, err := tr.Initialize(ctx, mcprpc.ClientInfo{Name: "aiops-engine", Version: "test"})
	require.NoError(t, err)
	require.Equal(t, mcprpc.ProtocolVersion, initResult.ProtocolVersion)

	tools, err := tr.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "k8s_get_pods", tools[0].Name)

	result, err := tr.CallTool(ctx, "k8s_get_pods", map[string]interface{}{"namespace": "default"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Equal(t, "ok", result.Content[0].Text)
}

func TestSubprocessTransportNotConnectedBeforeStart(t *testing.T) {
	tr := &SubprocessTransport{Command: "true"}
	require.False(t, tr.IsConnected())

	ctx := context.Background()
	_, err := tr.CallTool(ctx, "whatever", nil)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestSubprocessTransportStopIsIdempotent(t *testing.T) {
	tr := &SubprocessTransport{Command: "true"}
	ctx := context.Background()
	require.NoError(t, tr.Stop(ctx))
	require.NoError(t, tr.Stop(ctx))
}
