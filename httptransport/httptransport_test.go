package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/mcpservice"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httptest.Server, *mcpservice.Server) {
	t.Helper()
	srv, err := mcpservice.NewBuilder("http-test", "1").
		WithOptions(mcpservice.WithLogger(quietLogger())).
		Build(t.Context())
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	ts := httptest.NewServer(NewHandler(srv, WithLogger(quietLogger())))
	t.Cleanup(ts.Close)
	return ts, srv
}

func post(t *testing.T, url, contentType, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) jsonrpc.Message {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	msg, err := jsonrpc.Decode(b)
	if err != nil {
		t.Fatalf("decode %q: %v", b, err)
	}
	return msg
}

func TestHandlerInitializeAndNotify(t *testing.T) {
	t.Parallel()
	ts, srv := newTestServer(t)

	init, err := jsonrpc.NewRequest(jsonrpc.NewIntID(1), string(mcp.InitializeMethod), mcp.InitializeRequest{
		ProtocolVersion: mcp.LatestProtocolVersion,
		ClientInfo:      mcp.ImplementationInfo{Name: "client", Version: "1"},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b, _ := jsonrpc.Encode(init)
	resp := post(t, ts.URL, "application/json; charset=utf-8", string(b))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("unexpected content type %q", ct)
	}
	res, ok := decodeBody(t, resp).(*jsonrpc.Response)
	if !ok {
		t.Fatalf("expected response")
	}
	var ir mcp.InitializeResult
	if err := json.Unmarshal(res.Result, &ir); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if ir.ServerInfo.Name != "http-test" {
		t.Fatalf("unexpected server info: %#v", ir.ServerInfo)
	}

	resp = post(t, ts.URL, "application/json", `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for notification, got %d", resp.StatusCode)
	}
	if !srv.Initialized() {
		t.Fatalf("server not initialized after handshake")
	}
}

func TestHandlerRejections(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}

	if resp := post(t, ts.URL, "text/plain", `{}`); resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", resp.StatusCode)
	}
	if resp := post(t, ts.URL, "", `{}`); resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 without content type, got %d", resp.StatusCode)
	}

	resp = post(t, ts.URL, "application/json", `{"jsonrpc":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	er, ok := decodeBody(t, resp).(*jsonrpc.ErrorResponse)
	if !ok || er.Error.Code != jsonrpc.ErrorCodeInvalidRequest || er.ID != nil {
		t.Fatalf("expected invalid request with null id, got %#v", er)
	}
}

func TestHandlerGatesBeforeInitialize(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp := post(t, ts.URL, "application/json", `{"jsonrpc":"2.0","id":5,"method":"tools/list"}`)
	er, ok := decodeBody(t, resp).(*jsonrpc.ErrorResponse)
	if !ok {
		t.Fatalf("expected error response")
	}
	if er.Error.Code != jsonrpc.ErrorCodeInvalidRequest {
		t.Fatalf("expected invalid request before initialize, got %d", er.Error.Code)
	}
}

func TestTransportSend(t *testing.T) {
	t.Parallel()

	var gotAuth, gotType string
	var gotBody []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(ts.Close)

	tr, err := New(ts.URL, WithHeader("Authorization", "Bearer x"), WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	n, _ := jsonrpc.NewNotification(string(mcp.RootsListChangedNotificationMethod), nil)
	if err := tr.Send(t.Context(), n); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAuth != "Bearer x" || gotType != "application/json" {
		t.Fatalf("unexpected headers: auth=%q type=%q", gotAuth, gotType)
	}
	msg, err := jsonrpc.Decode(gotBody)
	if err != nil {
		t.Fatalf("server received undecodable body: %v", err)
	}
	if got, ok := msg.(*jsonrpc.Notification); !ok || got.Method != string(mcp.RootsListChangedNotificationMethod) {
		t.Fatalf("unexpected message: %#v", msg)
	}
}

func TestTransportFailures(t *testing.T) {
	t.Parallel()

	if _, err := New(""); !errors.Is(err, ErrEndpointRequired) {
		t.Fatalf("expected ErrEndpointRequired, got %v", err)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(ts.Close)

	tr, err := New(ts.URL, WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	n, _ := jsonrpc.NewNotification("x", nil)
	if err := tr.Send(t.Context(), n); !errors.Is(err, mcp.ErrTransport) {
		t.Fatalf("expected transport error for 502, got %v", err)
	}
	if _, err := tr.Receive(t.Context()); !errors.Is(err, mcp.ErrTransport) {
		t.Fatalf("expected transport error from receive, got %v", err)
	}

	_ = tr.Close()
	if err := tr.Send(t.Context(), n); !errors.Is(err, mcp.ErrTransport) {
		t.Fatalf("expected transport error after close, got %v", err)
	}
}
