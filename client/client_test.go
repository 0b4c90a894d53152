package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/mcpservice"
	"github.com/ggoodman/mcp-engine-go/stdio"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testInfo = mcp.ImplementationInfo{Name: "client-test", Version: "1"}

// connect serves srv over a pair of pipes and returns a client speaking to
// it through the stdio transport.
func connect(t *testing.T, srv *mcpservice.Server, opts ...Option) *Client {
	t.Helper()

	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- stdio.Serve(ctx, srv, stdio.WithIO(c2sR, s2cW), stdio.WithLogger(quietLogger()))
	}()

	tr := stdio.New(stdio.WithIO(s2cR, c2sW), stdio.WithLogger(quietLogger()))
	c := New(tr, testInfo, append([]Option{WithLogger(quietLogger())}, opts...)...)
	t.Cleanup(func() {
		_ = c.Close()
		cancel()
		_ = c2sW.Close()
		_ = s2cW.Close()
		<-done
	})
	return c
}

func buildServer(t *testing.T, b *mcpservice.Builder) *mcpservice.Server {
	t.Helper()
	srv, err := b.WithOptions(mcpservice.WithLogger(quietLogger())).Build(t.Context())
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	return srv
}

func timeoutCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestInitializeAgainstEmptyCapabilities(t *testing.T) {
	t.Parallel()
	srv := buildServer(t, mcpservice.NewBuilder("srv", "1"))
	c := connect(t, srv)
	ctx := timeoutCtx(t)

	if c.Initialized() || c.Server() != nil {
		t.Fatalf("client should start uninitialized")
	}
	res, err := c.Initialize(ctx)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if res.ProtocolVersion != mcp.LatestProtocolVersion {
		t.Fatalf("unexpected protocol version %q", res.ProtocolVersion)
	}
	if !reflect.DeepEqual(res.Capabilities, srv.Capabilities()) {
		t.Fatalf("capabilities mismatch: %#v != %#v", res.Capabilities, srv.Capabilities())
	}
	if !c.Initialized() || c.Server().ServerInfo.Name != "srv" {
		t.Fatalf("server info not cached: %#v", c.Server())
	}

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	_, err = c.ListTools(ctx, "")
	if !errors.Is(err, mcp.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	var rpcErr *jsonrpc.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("expected method not found from the server, got %v", err)
	}

	if _, err := c.Initialize(ctx); !errors.Is(err, mcp.ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
}

func TestToolsPromptsAndResources(t *testing.T) {
	t.Parallel()
	type echoArgs struct {
		Text string `json:"text"`
	}
	echo := mcpservice.NewTool("echo", func(ctx context.Context, a echoArgs) (*mcp.CallToolResult, error) {
		return mcpservice.TextResult(a.Text), nil
	})
	srv := buildServer(t, mcpservice.NewBuilder("srv", "1").
		WithTools(true).
		AddTool(echo).
		WithLogging())
	c := connect(t, srv)
	ctx := timeoutCtx(t)

	if _, err := c.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	tools, err := c.ListTools(ctx, "")
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(tools.Tools) != 1 || tools.Tools[0].Name != "echo" {
		t.Fatalf("unexpected tools: %#v", tools.Tools)
	}

	res, err := c.CallTool(ctx, "echo", echoArgs{Text: "hello"})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if len(res.Content) != 1 || res.Content[0].Text != "hello" {
		t.Fatalf("unexpected result: %#v", res)
	}

	if _, err := c.CallTool(ctx, "missing", nil); !errors.Is(err, mcp.ErrProtocol) {
		t.Fatalf("expected protocol error for unknown tool, got %v", err)
	}

	if err := c.SetLoggingLevel(ctx, mcp.LoggingLevelWarning); err != nil {
		t.Fatalf("set level: %v", err)
	}
	if _, err := c.ListPrompts(ctx, ""); err == nil {
		t.Fatalf("expected prompts/list to fail without the prompts capability")
	}
}

func TestCallsBeforeInitializeFailLocally(t *testing.T) {
	t.Parallel()
	tr := newPipeTransport()
	c := New(tr, testInfo, WithLogger(quietLogger()))
	defer c.Close()
	ctx := timeoutCtx(t)

	if err := c.Ping(ctx); !errors.Is(err, mcp.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if err := c.Notify(ctx, mcp.RootsListChangedNotificationMethod, nil); !errors.Is(err, mcp.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if n := tr.sentCount(); n != 0 {
		t.Fatalf("expected nothing on the wire, got %d messages", n)
	}

	// The acknowledgement is allowed through.
	if err := c.Notify(ctx, mcp.InitializedNotificationMethod, nil); err != nil {
		t.Fatalf("initialized notification: %v", err)
	}
	if n := tr.sentCount(); n != 1 {
		t.Fatalf("expected one message on the wire, got %d", n)
	}
}

func TestUnknownMethodIsCallerError(t *testing.T) {
	t.Parallel()
	tr := newPipeTransport()
	c := New(tr, testInfo, WithLogger(quietLogger()))
	defer c.Close()
	ctx := timeoutCtx(t)

	if err := c.Call(ctx, "bogus/method", nil, nil); !errors.Is(err, mcp.ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod, got %v", err)
	}
	if err := c.Call(ctx, mcp.ToolsListChangedNotificationMethod, nil, nil); !errors.Is(err, mcp.ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod for a notification, got %v", err)
	}
	if err := c.Notify(ctx, mcp.PingMethod, nil); !errors.Is(err, mcp.ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod for a request, got %v", err)
	}
	if n := tr.sentCount(); n != 0 {
		t.Fatalf("expected nothing on the wire, got %d messages", n)
	}
}

func TestInitializeAckFailureLeavesClientUninitialized(t *testing.T) {
	t.Parallel()
	tr := newPipeTransport()
	peer := &fakeServer{t: t, tr: tr}
	c := New(tr, testInfo, WithLogger(quietLogger()))
	defer c.Close()
	ctx := timeoutCtx(t)

	tr.setFailNotifications(true)
	go peer.answerInitialize()
	if _, err := c.Initialize(ctx); !errors.Is(err, mcp.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if c.Initialized() || c.Server() != nil {
		t.Fatalf("client must stay uninitialized when the acknowledgement fails")
	}

	tr.setFailNotifications(false)
	go peer.answerInitialize()
	if _, err := c.Initialize(ctx); err != nil {
		t.Fatalf("retry initialize: %v", err)
	}
	peer.expectNotification(mcp.InitializedNotificationMethod)
	if !c.Initialized() {
		t.Fatalf("expected initialized after retry")
	}
}

func TestResponsesRouteByID(t *testing.T) {
	t.Parallel()
	tr := newPipeTransport()
	peer := &fakeServer{t: t, tr: tr}
	c := New(tr, testInfo, WithLogger(quietLogger()))
	defer c.Close()
	ctx := timeoutCtx(t)

	go peer.answerInitialize()
	if _, err := c.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	peer.expectNotification(mcp.InitializedNotificationMethod)

	errs := make(chan error, 2)
	go func() { errs <- c.Ping(ctx) }()
	go func() { errs <- c.Ping(ctx) }()

	first := peer.expectRequest(mcp.PingMethod)
	second := peer.expectRequest(mcp.PingMethod)
	if first.ID.Equal(second.ID) {
		t.Fatalf("ids reused: %s", first.ID)
	}

	// Answer out of order; the second answer is an error.
	id := second.ID
	tr.inject(jsonrpc.NewErrorResponse(&id, jsonrpc.ErrorCodeInternalError, "boom", nil))
	res, _ := jsonrpc.NewResponse(first.ID, mcp.EmptyResult{})
	tr.inject(res)

	var failed, ok int
	for range 2 {
		err := <-errs
		switch {
		case err == nil:
			ok++
		case errors.Is(err, mcp.ErrProtocol) && strings.Contains(err.Error(), "boom"):
			failed++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || failed != 1 {
		t.Fatalf("expected one success and one failure, got %d/%d", ok, failed)
	}
}

func TestUnexpectedResultShape(t *testing.T) {
	t.Parallel()
	tr := newPipeTransport()
	peer := &fakeServer{t: t, tr: tr}
	c := New(tr, testInfo, WithLogger(quietLogger()))
	defer c.Close()
	ctx := timeoutCtx(t)

	go peer.answerInitialize()
	if _, err := c.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	peer.expectNotification(mcp.InitializedNotificationMethod)

	errs := make(chan error, 1)
	go func() {
		_, err := c.ListTools(ctx, "")
		errs <- err
	}()
	req := peer.expectRequest(mcp.ToolsListMethod)
	res, _ := jsonrpc.NewResponse(req.ID, map[string]any{"tools": "not-a-list"})
	tr.inject(res)

	err := <-errs
	if !errors.Is(err, mcp.ErrProtocol) || !strings.Contains(err.Error(), "unexpected response type") {
		t.Fatalf("expected unexpected response type, got %v", err)
	}
}

func TestServerOriginatedRequests(t *testing.T) {
	t.Parallel()
	tr := newPipeTransport()
	peer := &fakeServer{t: t, tr: tr}
	notes := make(chan *jsonrpc.Notification, 1)
	c := New(tr, testInfo,
		WithLogger(quietLogger()),
		WithRoots(mcp.Root{URI: "file:///workspace", Name: "workspace"}),
		WithNotificationHandler(func(ctx context.Context, n *jsonrpc.Notification) { notes <- n }))
	defer c.Close()
	ctx := timeoutCtx(t)

	caps := c.Capabilities()
	if caps.Roots == nil || !caps.Roots.ListChanged || caps.Sampling != nil {
		t.Fatalf("unexpected capabilities: %#v", caps)
	}

	go peer.answerInitialize()
	if _, err := c.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	peer.expectNotification(mcp.InitializedNotificationMethod)

	ping, _ := jsonrpc.NewRequest(jsonrpc.NewStringID("srv-1"), string(mcp.PingMethod), nil)
	tr.inject(ping)
	if res := peer.expectResponse(); !res.ID.Equal(ping.ID) {
		t.Fatalf("ping answered with id %s", res.ID)
	}

	roots, _ := jsonrpc.NewRequest(jsonrpc.NewStringID("srv-2"), string(mcp.RootsListMethod), nil)
	tr.inject(roots)
	var lr mcp.ListRootsResult
	peer.decodeResult(peer.expectResponse(), &lr)
	if len(lr.Roots) != 1 || lr.Roots[0].URI != "file:///workspace" {
		t.Fatalf("unexpected roots: %#v", lr.Roots)
	}

	sample, _ := jsonrpc.NewRequest(jsonrpc.NewStringID("srv-3"), string(mcp.SamplingCreateMessageMethod), nil)
	tr.inject(sample)
	if er := peer.expectErrorResponse(); er.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("expected method not found, got %d", er.Error.Code)
	}

	if err := c.SetRoots(ctx, mcp.Root{URI: "file:///other"}); err != nil {
		t.Fatalf("set roots: %v", err)
	}
	peer.expectNotification(mcp.RootsListChangedNotificationMethod)

	n, _ := jsonrpc.NewNotification(string(mcp.ToolsListChangedNotificationMethod), nil)
	tr.inject(n)
	select {
	case got := <-notes:
		if got.Method != string(mcp.ToolsListChangedNotificationMethod) {
			t.Fatalf("unexpected notification %s", got.Method)
		}
	case <-ctx.Done():
		t.Fatalf("notification not delivered")
	}
}

func TestCancelledCallSendsNotification(t *testing.T) {
	t.Parallel()
	tr := newPipeTransport()
	peer := &fakeServer{t: t, tr: tr}
	c := New(tr, testInfo, WithLogger(quietLogger()))
	defer c.Close()
	ctx := timeoutCtx(t)

	go peer.answerInitialize()
	if _, err := c.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	peer.expectNotification(mcp.InitializedNotificationMethod)

	callCtx, cancel := context.WithCancel(ctx)
	errs := make(chan error, 1)
	go func() { errs <- c.Ping(callCtx) }()
	req := peer.expectRequest(mcp.PingMethod)
	cancel()

	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	n := peer.expectNotification(mcp.CancelledNotificationMethod)
	params, err := mcp.DecodeParams(mcp.CancelledNotificationMethod, n.Params)
	if err != nil {
		t.Fatalf("decode cancelled: %v", err)
	}
	if got := params.(*mcp.CancelledNotification).RequestID; !got.Equal(req.ID) {
		t.Fatalf("cancelled %s, want %s", got, req.ID)
	}
}

func TestCloseFailsPendingCalls(t *testing.T) {
	t.Parallel()
	tr := newPipeTransport()
	peer := &fakeServer{t: t, tr: tr}
	c := New(tr, testInfo, WithLogger(quietLogger()))
	ctx := timeoutCtx(t)

	go peer.answerInitialize()
	if _, err := c.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	peer.expectNotification(mcp.InitializedNotificationMethod)

	errs := make(chan error, 1)
	go func() { errs <- c.Ping(ctx) }()
	peer.expectRequest(mcp.PingMethod)

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-errs; !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
	if err := c.Ping(ctx); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed after close, got %v", err)
	}
}

// pipeTransport is an in-memory transport whose peer side is driven by the
// test through inject and sent.
type pipeTransport struct {
	in   chan jsonrpc.Message
	out  chan jsonrpc.Message
	mu   sync.Mutex
	sent int
	once sync.Once
	done chan struct{}

	// failNotifications makes Send reject notifications.
	failNotifications bool
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{
		in:   make(chan jsonrpc.Message, 16),
		out:  make(chan jsonrpc.Message, 16),
		done: make(chan struct{}),
	}
}

func (p *pipeTransport) Send(ctx context.Context, msg jsonrpc.Message) error {
	select {
	case <-p.done:
		return mcp.NewError(mcp.KindTransport, "closed")
	default:
	}
	p.mu.Lock()
	if _, ok := msg.(*jsonrpc.Notification); ok && p.failNotifications {
		p.mu.Unlock()
		return mcp.NewError(mcp.KindTransport, "notification rejected")
	}
	p.sent++
	p.mu.Unlock()
	select {
	case p.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeTransport) Receive(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *pipeTransport) inject(msg jsonrpc.Message) { p.in <- msg }

func (p *pipeTransport) setFailNotifications(fail bool) {
	p.mu.Lock()
	p.failNotifications = fail
	p.mu.Unlock()
}

func (p *pipeTransport) sentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// fakeServer plays the server side of a pipeTransport.
type fakeServer struct {
	t  *testing.T
	tr *pipeTransport
}

func (f *fakeServer) next() jsonrpc.Message {
	f.t.Helper()
	select {
	case msg := <-f.tr.out:
		return msg
	case <-time.After(5 * time.Second):
		f.t.Fatalf("timed out waiting for a client message")
		return nil
	}
}

func (f *fakeServer) expectRequest(method mcp.Method) *jsonrpc.Request {
	f.t.Helper()
	req, ok := f.next().(*jsonrpc.Request)
	if !ok || req.Method != string(method) {
		f.t.Fatalf("expected %s request, got %#v", method, req)
	}
	return req
}

func (f *fakeServer) expectNotification(method mcp.Method) *jsonrpc.Notification {
	f.t.Helper()
	n, ok := f.next().(*jsonrpc.Notification)
	if !ok || n.Method != string(method) {
		f.t.Fatalf("expected %s notification, got %#v", method, n)
	}
	return n
}

func (f *fakeServer) expectResponse() *jsonrpc.Response {
	f.t.Helper()
	res, ok := f.next().(*jsonrpc.Response)
	if !ok {
		f.t.Fatalf("expected response")
	}
	return res
}

func (f *fakeServer) expectErrorResponse() *jsonrpc.ErrorResponse {
	f.t.Helper()
	res, ok := f.next().(*jsonrpc.ErrorResponse)
	if !ok {
		f.t.Fatalf("expected error response")
	}
	return res
}

func (f *fakeServer) decodeResult(res *jsonrpc.Response, out any) {
	f.t.Helper()
	if err := json.Unmarshal(res.Result, out); err != nil {
		f.t.Fatalf("decode result: %v", err)
	}
}

// answerInitialize runs on its own goroutine, so it reports with Errorf.
func (f *fakeServer) answerInitialize() {
	var req *jsonrpc.Request
	select {
	case msg := <-f.tr.out:
		req, _ = msg.(*jsonrpc.Request)
	case <-time.After(5 * time.Second):
	}
	if req == nil || req.Method != string(mcp.InitializeMethod) {
		f.t.Errorf("expected initialize request, got %#v", req)
		return
	}
	res, err := jsonrpc.NewResponse(req.ID, mcp.InitializeResult{
		ProtocolVersion: mcp.LatestProtocolVersion,
		ServerInfo:      mcp.ImplementationInfo{Name: "fake", Version: "0"},
	})
	if err != nil {
		f.t.Errorf("build initialize result: %v", err)
		return
	}
	f.tr.inject(res)
}
