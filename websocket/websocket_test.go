package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/ggoodman/mcp-engine-go/broker/memory"
	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/mcpservice"
	"github.com/ggoodman/mcp-engine-go/transport"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func builderFactory(b func() *mcpservice.Builder) ServerFactory {
	return func(ctx context.Context) (transport.Server, error) {
		return b().WithOptions(mcpservice.WithLogger(quietLogger())).Build(ctx)
	}
}

func dial(t *testing.T, h *Handler) *Transport {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	tr, err := Dial(t.Context(), url, "http://localhost/", WithTransportLogger(quietLogger()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func receive(t *testing.T, tr *Transport) jsonrpc.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	msg, err := tr.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	return msg
}

func request(t *testing.T, tr *Transport, id int64, method mcp.Method, params any) *jsonrpc.Response {
	t.Helper()
	req, err := jsonrpc.NewRequest(jsonrpc.NewIntID(id), string(method), params)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := tr.Send(t.Context(), req); err != nil {
		t.Fatalf("send: %v", err)
	}
	res, ok := receive(t, tr).(*jsonrpc.Response)
	if !ok {
		t.Fatalf("%s: expected response", method)
	}
	if !res.ID.Equal(req.ID) {
		t.Fatalf("%s: id mismatch %s != %s", method, res.ID, req.ID)
	}
	return res
}

func initialize(t *testing.T, tr *Transport) {
	t.Helper()
	request(t, tr, 1, mcp.InitializeMethod, mcp.InitializeRequest{
		ProtocolVersion: mcp.LatestProtocolVersion,
		ClientInfo:      mcp.ImplementationInfo{Name: "ws-client", Version: "1"},
	})
	n, _ := jsonrpc.NewNotification(string(mcp.InitializedNotificationMethod), nil)
	if err := tr.Send(t.Context(), n); err != nil {
		t.Fatalf("send initialized: %v", err)
	}
}

func TestHandshakeAndPing(t *testing.T) {
	t.Parallel()
	h := NewHandler(builderFactory(func() *mcpservice.Builder {
		return mcpservice.NewBuilder("ws-test", "1")
	}), WithLogger(quietLogger()))
	tr := dial(t, h)

	initialize(t, tr)
	request(t, tr, 2, mcp.PingMethod, nil)
}

func TestUnparseableFramesAreDropped(t *testing.T) {
	t.Parallel()
	h := NewHandler(builderFactory(func() *mcpservice.Builder {
		return mcpservice.NewBuilder("ws-test", "1")
	}), WithLogger(quietLogger()))
	tr := dial(t, h)

	if err := websocket.Message.Send(tr.conn, "not json"); err != nil {
		t.Fatalf("send garbage: %v", err)
	}
	// The server never saw the garbage frame, so the next request is the
	// first one it answers.
	initialize(t, tr)
	request(t, tr, 2, mcp.PingMethod, nil)
}

func TestServerNotificationsArePumped(t *testing.T) {
	t.Parallel()
	type echoArgs struct {
		Text string `json:"text"`
	}
	servers := make(chan *mcpservice.Server, 1)
	h := NewHandler(func(ctx context.Context) (transport.Server, error) {
		srv, err := mcpservice.NewBuilder("ws-test", "1").
			WithTools(true).
			WithOptions(mcpservice.WithLogger(quietLogger())).
			Build(ctx)
		if err != nil {
			return nil, err
		}
		servers <- srv
		return srv, nil
	}, WithLogger(quietLogger()))
	tr := dial(t, h)
	initialize(t, tr)

	srv := <-servers
	shout := mcpservice.NewTool("shout", func(ctx context.Context, a echoArgs) (*mcp.CallToolResult, error) {
		return mcpservice.TextResult(strings.ToUpper(a.Text)), nil
	})
	if err := srv.Tools().Register(t.Context(), shout); err != nil {
		t.Fatalf("register: %v", err)
	}

	n, ok := receive(t, tr).(*jsonrpc.Notification)
	if !ok || n.Method != string(mcp.ToolsListChangedNotificationMethod) {
		t.Fatalf("expected tools list_changed, got %#v", n)
	}

	res := request(t, tr, 2, mcp.ToolsCallMethod, mcp.CallToolRequest{Name: "shout", Arguments: json.RawMessage(`{"text":"hi"}`)})
	var cr mcp.CallToolResult
	if err := json.Unmarshal(res.Result, &cr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cr.Content) != 1 || cr.Content[0].Text != "HI" {
		t.Fatalf("unexpected result: %#v", cr)
	}
}

func TestBrokerRelay(t *testing.T) {
	t.Parallel()
	b := memory.New()
	h := NewHandler(builderFactory(func() *mcpservice.Builder {
		return mcpservice.NewBuilder("ws-test", "1")
	}), WithLogger(quietLogger()), WithBroker(b, "broadcast"))
	tr := dial(t, h)
	initialize(t, tr)

	n, _ := jsonrpc.NewNotification(string(mcp.ResourcesListChangedNotificationMethod), nil)
	if _, err := b.Publish(t.Context(), "broadcast", n); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, ok := receive(t, tr).(*jsonrpc.Notification)
	if !ok || got.Method != string(mcp.ResourcesListChangedNotificationMethod) {
		t.Fatalf("expected relayed notification, got %#v", got)
	}
}

func TestReceiveAfterPeerClose(t *testing.T) {
	t.Parallel()
	h := NewHandler(func(ctx context.Context) (transport.Server, error) {
		return nil, errors.New("refused")
	}, WithLogger(quietLogger()))
	tr := dial(t, h)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	_, err := tr.Receive(ctx)
	if !errors.Is(err, ErrConnectionClosed) || !errors.Is(err, mcp.ErrTransport) {
		t.Fatalf("expected transport connection closed error, got %v", err)
	}
}

func TestSendAfterClose(t *testing.T) {
	t.Parallel()
	h := NewHandler(builderFactory(func() *mcpservice.Builder {
		return mcpservice.NewBuilder("ws-test", "1")
	}), WithLogger(quietLogger()))
	tr := dial(t, h)
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	n, _ := jsonrpc.NewNotification("x", nil)
	if err := tr.Send(t.Context(), n); !errors.Is(err, mcp.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
