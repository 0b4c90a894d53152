package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/sampling"
	"github.com/ggoodman/mcp-engine-go/transport"
)

// ErrClientClosed is wrapped by every call pending or issued after Close,
// and after the transport stops delivering messages.
var ErrClientClosed = errors.New("client closed")

// NotificationHandler receives notifications sent by the server.
type NotificationHandler func(ctx context.Context, n *jsonrpc.Notification)

// Client issues requests to an MCP server over a transport and routes the
// server's replies back to the waiting callers by request ID.
type Client struct {
	t    transport.Transport
	log  *slog.Logger
	id   string
	info mcp.ImplementationInfo

	protocolVersion string
	sampler         sampling.Sampler
	onNotification  NotificationHandler

	rootsMu     sync.RWMutex
	roots       []mcp.Root
	rootsConfig bool

	nextID atomic.Int64

	mu       sync.Mutex
	pending  map[jsonrpc.RequestID]chan jsonrpc.Message
	closed   bool
	closeErr error
	done     chan struct{}

	server atomic.Pointer[mcp.InitializeResult]

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger overrides the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithProtocolVersion overrides the protocol version offered in initialize.
func WithProtocolVersion(v string) Option {
	return func(c *Client) {
		if v != "" {
			c.protocolVersion = v
		}
	}
}

// WithRoots advertises the roots capability and answers roots/list with
// roots. SetRoots replaces the list later.
func WithRoots(roots ...mcp.Root) Option {
	return func(c *Client) {
		c.rootsConfig = true
		c.roots = append([]mcp.Root(nil), roots...)
	}
}

// WithSampler advertises the sampling capability and serves
// sampling/createMessage requests with s.
func WithSampler(s sampling.Sampler) Option {
	return func(c *Client) {
		c.sampler = s
	}
}

// WithNotificationHandler sets the callback for server notifications. The
// callback runs on the reader goroutine and must not block.
func WithNotificationHandler(h NotificationHandler) Option {
	return func(c *Client) {
		c.onNotification = h
	}
}

// New constructs a Client speaking over t. The reader loop starts on the
// first request or on Start.
func New(t transport.Transport, info mcp.ImplementationInfo, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		t:               t,
		log:             slog.Default(),
		id:              uuid.NewString(),
		info:            info,
		protocolVersion: mcp.LatestProtocolVersion,
		pending:         make(map[jsonrpc.RequestID]chan jsonrpc.Message),
		done:            make(chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(slog.String("client_id", c.id))
	return c
}

// Start runs the reader loop until ctx is done, the transport ends, or the
// client is closed. Calling it more than once has no effect.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.readLoop(ctx)
	})
}

// Capabilities reports what this client advertises in initialize.
func (c *Client) Capabilities() mcp.ClientCapabilities {
	var caps mcp.ClientCapabilities
	c.rootsMu.RLock()
	roots := c.rootsConfig
	c.rootsMu.RUnlock()
	if roots {
		caps.Roots = &mcp.RootsCapability{ListChanged: true}
	}
	if c.sampler != nil {
		caps.Sampling = &mcp.SamplingCapability{}
	}
	return caps
}

// Initialized reports whether the handshake has completed.
func (c *Client) Initialized() bool {
	return c.server.Load() != nil
}

// Server returns the initialize result, or nil before the handshake.
func (c *Client) Server() *mcp.InitializeResult {
	return c.server.Load()
}

// Initialize performs the handshake: it sends initialize, sends
// notifications/initialized, then records the server's answer. If any step
// fails the client stays uninitialized and Initialize may be retried.
func (c *Client) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	if c.Initialized() {
		return nil, mcp.NewError(mcp.KindAlreadyInitialized, "client already initialized")
	}

	var res mcp.InitializeResult
	err := c.Call(ctx, mcp.InitializeMethod, &mcp.InitializeRequest{
		ProtocolVersion: c.protocolVersion,
		Capabilities:    c.Capabilities(),
		ClientInfo:      c.info,
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.ProtocolVersion != c.protocolVersion {
		return nil, mcp.NewError(mcp.KindProtocol, "unsupported protocol version %q", res.ProtocolVersion)
	}

	// The handshake only counts once the acknowledgement is on the wire.
	if err := c.Notify(ctx, mcp.InitializedNotificationMethod, nil); err != nil {
		return nil, err
	}
	c.server.Store(&res)

	c.log.InfoContext(ctx, "client.initialized",
		slog.String("server", res.ServerInfo.Name),
		slog.String("server_version", res.ServerInfo.Version))
	return &res, nil
}

// Call sends a request for method and decodes its result into out, which
// may be nil. Server error responses are returned as Protocol errors whose
// *jsonrpc.Error is reachable with errors.As.
func (c *Client) Call(ctx context.Context, method mcp.Method, params any, out any) error {
	if _, err := mcp.NewResult(method); err != nil {
		return err
	}
	if method != mcp.InitializeMethod && !c.Initialized() {
		return mcp.NewError(mcp.KindProtocol, "client not initialized")
	}

	id := jsonrpc.NewIntID(c.nextID.Add(1))
	req, err := jsonrpc.NewRequest(id, string(method), params)
	if err != nil {
		return mcp.WrapError(mcp.KindSerialization, err, "encode %s params", method)
	}

	ch := make(chan jsonrpc.Message, 1)
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.Start(c.ctx)

	if err := c.t.Send(ctx, req); err != nil {
		c.forget(id)
		return err
	}

	select {
	case msg := <-ch:
		return decodeReply(method, msg, out)
	case <-ctx.Done():
		c.forget(id)
		cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelSendTimeout)
		defer cancel()
		if err := c.Cancel(cancelCtx, id, "request cancelled"); err != nil {
			c.log.DebugContext(ctx, "client.cancel.send_fail", slog.String("err", err.Error()))
		}
		return ctx.Err()
	case <-c.done:
		return c.closeErr
	}
}

func decodeReply(method mcp.Method, msg jsonrpc.Message, out any) error {
	switch m := msg.(type) {
	case *jsonrpc.Response:
		if out == nil {
			if _, err := mcp.DecodeResult(method, m.Result); err != nil {
				return mcp.WrapError(mcp.KindProtocol, err, "unexpected response type")
			}
			return nil
		}
		if len(m.Result) == 0 || string(m.Result) == "null" {
			return mcp.NewError(mcp.KindProtocol, "unexpected response type: empty result")
		}
		if err := json.Unmarshal(m.Result, out); err != nil {
			return mcp.WrapError(mcp.KindProtocol, err, "unexpected response type")
		}
		return nil
	case *jsonrpc.ErrorResponse:
		rpcErr := m.Error
		e := mcp.NewError(mcp.KindProtocol, "%s", rpcErr.Message)
		e.RPC = &rpcErr
		return e
	default:
		return mcp.NewError(mcp.KindProtocol, "unexpected response type: %s", msg.Kind())
	}
}

// Notify sends a notification. Only notifications/initialized may precede
// the handshake.
func (c *Client) Notify(ctx context.Context, method mcp.Method, params any) error {
	if !method.IsNotification() {
		return fmt.Errorf("%w: %s is not a notification", mcp.ErrUnknownMethod, method)
	}
	if method != mcp.InitializedNotificationMethod && !c.Initialized() {
		return mcp.NewError(mcp.KindProtocol, "client not initialized")
	}
	if c.isClosed() {
		return c.closeErr
	}
	n, err := jsonrpc.NewNotification(string(method), params)
	if err != nil {
		return mcp.WrapError(mcp.KindSerialization, err, "encode %s params", method)
	}
	return c.t.Send(ctx, n)
}

// Close fails every pending call with ErrClientClosed and closes the
// transport.
func (c *Client) Close() error {
	c.shutdown(ErrClientClosed)
	return c.t.Close()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) forget(id jsonrpc.RequestID) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) shutdown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if errors.Is(cause, ErrClientClosed) {
		c.closeErr = cause
	} else {
		c.closeErr = fmt.Errorf("%w: %w", ErrClientClosed, cause)
	}
	clear(c.pending)
	c.mu.Unlock()

	close(c.done)
	c.cancel()
}

// deliver routes a reply to its waiting caller. Replies for unknown or
// abandoned IDs are dropped.
func (c *Client) deliver(ctx context.Context, id jsonrpc.RequestID, msg jsonrpc.Message) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		c.log.DebugContext(ctx, "client.reply.unmatched", slog.String("id", id.String()))
		return
	}
	ch <- msg
}
