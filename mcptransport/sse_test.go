package mcptransport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sreops/aiops-engine/mcprpc"
)

// sseServer builds a fixture matching scenario S6: two notification records with no id,
// interleaved before the matching result record for the request just received.
func sseServer(t *testing.T, resultJSON string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event: message\n")
		fmt.Fprint(w, `data: {"jsonrpc":"2.0","method":"notifications/message","params":{"level":"info","data":"starting"}}`+"\n\n")
		fmt.Fprint(w, "event: message\n")
		fmt.Fprint(w, `data: {"jsonrpc":"2.0","method":"notifications/message","params":{"level":"info","data":"working"}}`+"\n\n")
		fmt.Fprint(w, "event: message\n")
		fmt.Fprintf(w, "data: %s\n\n", resultJSON)
	}))
}

func TestSSETransportSkipsNotificationsAndMatchesID(t *testing.T) {
	srv := sseServer(t, `{"jsonrpc":"2.0","id":1,"result":{"tools":[{"name":"k8s_get_pods","description":"list pods"}]}}`)
	defer srv.Close()

	tr := &SSETransport{URL: srv.URL}
	ctx := context.Background()
	require.NoError(t, tr.Start(ctx))
	defer tr.Stop(ctx)

	tools, err := tr.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "k8s_get_pods", tools[0].Name)
}

func TestSSETransportInitializeAndCallTool(t *testing.T) {
	initSrv := sseServer(t, `{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05","capabilities":{},"serverInfo":{"name":"echo","version":"0.1"}}}`)
	defer initSrv.Close()

	tr := &SSETransport{URL: initSrv.URL}
	ctx := context.Background()
	require.NoError(t, tr.Start(ctx))
	defer tr.Stop(ctx)

	result, err := tr.Initialize(ctx, mcprpc.ClientInfo{Name: "aiops-engine", Version: "test"})
	require.NoError(t, err)
	require.Equal(t, mcprpc.ProtocolVersion, result.ProtocolVersion)

	// The fixture answers a fixed id, so the follow-up call (id 2) goes to a second server.
	callSrv := sseServer(t, `{"jsonrpc":"2.0","id":2,"result":{"content":[{"type":"text","text":"scan complete"}]}}`)
	defer callSrv.Close()
	tr.URL = callSrv.URL

	callResult, err := tr.CallTool(ctx, "k8s_get_pods", nil)
	require.NoError(t, err)
	require.False(t, callResult.IsError)
	require.Equal(t, "scan complete", callResult.Content[0].Text)
}

func TestSSETransportToolErrorSurfacedAsContent(t *testing.T) {
	srv := sseServer(t, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"tool exploded"}}`)
	defer srv.Close()

	tr := &SSETransport{URL: srv.URL}
	ctx := context.Background()
	require.NoError(t, tr.Start(ctx))
	defer tr.Stop(ctx)

	result, err := tr.CallTool(ctx, "k8s_restart_pod", map[string]interface{}{"pod": "web-1"})
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Equal(t, "tool exploded", result.Content[0].Text)
}

func TestSSETransportNoMatchingResponseWhenStreamEndsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := &SSETransport{URL: srv.URL}
	ctx := context.Background()
	require.NoError(t, tr.Start(ctx))
	defer tr.Stop(ctx)

	_, err := tr.ListTools(ctx)
	require.ErrorIs(t, err, ErrNoMatchingResponse)
}

func TestSSETransportNotConnectedBeforeStart(t *testing.T) {
	tr := &SSETransport{URL: "http://127.0.0.1:0"}
	require.False(t, tr.IsConnected())

	_, err := tr.ListTools(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
}
