package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/mcp-engine-go/internal/logctx"
	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/notify"
)

// Engine is the server-side protocol core: it owns the initialization state,
// gates traffic on it, and dispatches requests and notifications through a
// Registry. It is transport-agnostic; transports feed it decoded messages
// and write back whatever it returns.
type Engine struct {
	log  *slog.Logger
	sink notify.Sink

	stateMu sync.RWMutex
	state   State

	registry *Registry

	exemptInitializedAck bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithInitializedGateExemption controls whether notifications/initialized is
// accepted before the handshake completed. Enabled by default.
func WithInitializedGateExemption(exempt bool) Option {
	return func(e *Engine) { e.exemptInitializedAck = exempt }
}

// New creates an uninitialized engine advertising caps and info. Progress
// notifications created during dispatch are emitted into sink.
func New(caps mcp.ServerCapabilities, info mcp.ImplementationInfo, sink notify.Sink, opts ...Option) *Engine {
	e := &Engine{
		log:                  slog.Default(),
		sink:                 sink,
		state:                Uninitialized{Capabilities: caps, Implementation: info},
		registry:             NewRegistry(),
		exemptInitializedAck: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Registry returns the engine's handler registry.
func (e *Engine) Registry() *Registry { return e.registry }

// State returns a snapshot of the current state.
func (e *Engine) State() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// Initialize performs the one-way handshake transition. It fails with
// AlreadyInitialized after a successful handshake and with InvalidRequest
// when the requested protocol version differs from the supported one; in
// both cases the state is left unchanged.
func (e *Engine) Initialize(ctx context.Context, req *mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	switch st := e.state.(type) {
	case Initialized:
		return nil, mcp.ErrAlreadyInitialized
	case Uninitialized:
		if req.ProtocolVersion != mcp.LatestProtocolVersion {
			return nil, mcp.NewError(mcp.KindInvalidRequest, "unsupported protocol version: %s", req.ProtocolVersion)
		}
		e.state = Initialized{
			Capabilities:    st.Capabilities,
			Implementation:  st.Implementation,
			ProtocolVersion: mcp.LatestProtocolVersion,
		}
		e.log.InfoContext(ctx, "engine.initialize.ok",
			slog.String("client", req.ClientInfo.Name),
			slog.String("client_version", req.ClientInfo.Version),
		)
		return &mcp.InitializeResult{
			ProtocolVersion: mcp.LatestProtocolVersion,
			Capabilities:    st.Capabilities,
			ServerInfo:      st.Implementation,
		}, nil
	default:
		return nil, mcp.NewError(mcp.KindInternal, "unknown server state %T", st)
	}
}

// CheckInitialized fails with NotInitialized until the handshake completed.
func (e *Engine) CheckInitialized() error {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if _, ok := e.state.(Initialized); !ok {
		return mcp.ErrNotInitialized
	}
	return nil
}

// Handle dispatches any inbound message. Requests always produce a
// *jsonrpc.Response or *jsonrpc.ErrorResponse; everything else produces nil.
func (e *Engine) Handle(ctx context.Context, msg jsonrpc.Message) jsonrpc.Message {
	switch m := msg.(type) {
	case *jsonrpc.Request:
		return e.HandleRequest(ctx, m)
	case *jsonrpc.Notification:
		if err := e.HandleNotification(ctx, m); err != nil {
			e.log.InfoContext(ctx, "engine.handle_notification.fail", slog.String("method", m.Method), slog.String("err", err.Error()))
		}
		return nil
	default:
		e.log.WarnContext(ctx, "engine.handle_message.unexpected", slog.String("kind", kindOf(msg)))
		return nil
	}
}

// HandleRequest routes a request and normalizes the outcome into a wire
// message. It never returns nil and never panics on handler failure.
func (e *Engine) HandleRequest(ctx context.Context, req *jsonrpc.Request) jsonrpc.Message {
	start := time.Now()
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: "request"})
	log := e.log.With(slog.String("method", req.Method))

	res, err := e.dispatch(ctx, req)
	if err != nil {
		merr := mcp.AsError(err)
		switch merr.Kind {
		case mcp.KindMethodNotFound:
			log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		case mcp.KindInternal, mcp.KindSerialization, mcp.KindTransport:
			log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", merr.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		default:
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", merr.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		}
		id := req.ID
		return mcp.ToResponse(&id, merr)
	}

	resp, err := jsonrpc.NewResponse(req.ID, res)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		id := req.ID
		return mcp.ToResponse(&id, mcp.WrapError(mcp.KindInternal, err, "encode result"))
	}

	log.DebugContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return resp
}

func (e *Engine) dispatch(ctx context.Context, req *jsonrpc.Request) (any, error) {
	if req.Method == string(mcp.InitializeMethod) {
		var params mcp.InitializeRequest
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return nil, mcp.WrapError(mcp.KindInvalidParams, err, "invalid initialize params")
			}
		}
		return e.Initialize(ctx, &params)
	}

	if err := e.CheckInitialized(); err != nil {
		return nil, err
	}

	h, ok := e.registry.Lookup(req.Method)
	if !ok {
		return nil, mcp.NewError(mcp.KindMethodNotFound, "method not found: %s", req.Method)
	}

	if token, ok := notify.ProgressTokenFrom(req.Params); ok {
		ctx = notify.WithTracker(ctx, notify.NewTracker(e.sink, token, nil))
	}

	return invokeRequest(ctx, h, req.Params)
}

// HandleNotification gates and routes a notification. Notifications without
// a handler are accepted silently.
func (e *Engine) HandleNotification(ctx context.Context, n *jsonrpc.Notification) error {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: n.Method, Type: "notification"})

	exempt := e.exemptInitializedAck && n.Method == string(mcp.InitializedNotificationMethod)
	if !exempt {
		if err := e.CheckInitialized(); err != nil {
			return err
		}
	}

	h, ok := e.registry.LookupNotification(n.Method)
	if !ok {
		e.log.DebugContext(ctx, "engine.handle_notification.unhandled", slog.String("method", n.Method))
		return nil
	}
	return invokeNotification(ctx, h, n.Params)
}

// invokeRequest runs a handler, converting a panic into an Internal error.
// Locks held by the handler are released by their deferred unlocks, so the
// engine keeps serving after a failed call.
func invokeRequest(ctx context.Context, h RequestHandler, params json.RawMessage) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, mcp.NewError(mcp.KindInternal, "handler panicked: %v", r)
		}
	}()
	return h.HandleRequest(ctx, params)
}

func invokeNotification(ctx context.Context, h NotificationHandler, params json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = mcp.NewError(mcp.KindInternal, "notification handler panicked: %v", r)
		}
	}()
	return h.HandleNotification(ctx, params)
}

func kindOf(msg jsonrpc.Message) string {
	if msg == nil {
		return "nil"
	}
	return fmt.Sprint(msg.Kind())
}
