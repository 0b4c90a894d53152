package mcpservice

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ggoodman/mcp-engine-go/internal/engine"
	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/notify"
	"github.com/ggoodman/mcp-engine-go/sampling"
)

// Handler types re-exported for custom method registration.
type (
	RequestHandler          = engine.RequestHandler
	NotificationHandler     = engine.NotificationHandler
	RequestHandlerFunc      = engine.RequestHandlerFunc
	NotificationHandlerFunc = engine.NotificationHandlerFunc

	State         = engine.State
	Uninitialized = engine.Uninitialized
	Initialized   = engine.Initialized
)

// Typed adapts a typed function into a RequestHandler. Params that fail to
// decode into P are reported as InvalidParams.
func Typed[P any, R any](fn func(ctx context.Context, params *P) (R, error)) RequestHandler {
	return engine.Typed(fn)
}

// TypedNotification adapts a typed function into a NotificationHandler.
func TypedNotification[P any](fn func(ctx context.Context, params *P) error) NotificationHandler {
	return engine.TypedNotification(fn)
}

// maxCancellations bounds how many advisory cancellations are remembered.
const maxCancellations = 256

// Server is an MCP server: the protocol engine plus the default handlers for
// every advertised capability. It is safe for concurrent use and does no I/O
// itself; transports feed it messages and drain Notifications.
type Server struct {
	log    *slog.Logger
	engine *engine.Engine
	caps   mcp.ServerCapabilities

	sink notify.Sink
	out  <-chan *jsonrpc.Notification

	logging   *notify.Logger
	roots     *Roots
	resources *Resources
	tools     *Tools
	prompts   *Prompts

	onCancel func(context.Context, *mcp.CancelledNotification)

	cancelMu  sync.Mutex
	cancelled map[jsonrpc.RequestID]string
	cancelLog []jsonrpc.RequestID
}

type serverConfig struct {
	log       *slog.Logger
	queueSize int
	levelVar  *slog.LevelVar
	sampler   sampling.Sampler
	completer Completer
	exemptAck bool
	onCancel  func(context.Context, *mcp.CancelledNotification)
	pageSize  int
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

// WithLogger sets the process logger used by the server and its engine.
func WithLogger(l *slog.Logger) ServerOption {
	return func(c *serverConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithQueueSize sets the capacity of the outbound notification queue.
func WithQueueSize(n int) ServerOption {
	return func(c *serverConfig) { c.queueSize = n }
}

// WithSlogLevelVar mirrors logging/setLevel onto lv.
func WithSlogLevelVar(lv *slog.LevelVar) ServerOption {
	return func(c *serverConfig) { c.levelVar = lv }
}

// WithSampler registers sampling/createMessage backed by s.
func WithSampler(s sampling.Sampler) ServerOption {
	return func(c *serverConfig) { c.sampler = s }
}

// WithCompleter answers completion/complete with comp. Without one the
// handler returns an empty completion.
func WithCompleter(comp Completer) ServerOption {
	return func(c *serverConfig) { c.completer = comp }
}

// WithInitializedGateExemption controls whether notifications/initialized
// is accepted before the handshake. Enabled by default.
func WithInitializedGateExemption(exempt bool) ServerOption {
	return func(c *serverConfig) { c.exemptAck = exempt }
}

// WithCancellationHandler is called for every notifications/cancelled.
// Cancellation is advisory: in-flight handlers are not interrupted.
func WithCancellationHandler(fn func(ctx context.Context, n *mcp.CancelledNotification)) ServerOption {
	return func(c *serverConfig) { c.onCancel = fn }
}

// WithPageSize enables cursor pagination of the list methods.
func WithPageSize(n int) ServerOption {
	return func(c *serverConfig) { c.pageSize = n }
}

// New builds a server advertising caps and info. Handlers are wired for each
// capability present; ping and notifications/cancelled are always wired.
func New(caps mcp.ServerCapabilities, info mcp.ImplementationInfo, opts ...ServerOption) *Server {
	cfg := serverConfig{log: slog.Default(), exemptAck: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	sink, out := notify.NewQueue(cfg.queueSize)
	sink = sink.WithLogger(cfg.log)
	s := &Server{
		log:  cfg.log,
		caps: caps,
		sink: sink,
		out:  out,
		engine: engine.New(caps, info, sink,
			engine.WithLogger(cfg.log),
			engine.WithInitializedGateExemption(cfg.exemptAck),
		),
		onCancel:  cfg.onCancel,
		cancelled: make(map[jsonrpc.RequestID]string),
	}
	reg := s.engine.Registry()

	reg.Register(string(mcp.PingMethod), engine.Typed(func(ctx context.Context, _ *mcp.PingRequest) (*mcp.EmptyResult, error) {
		return &mcp.EmptyResult{}, nil
	}))
	reg.RegisterNotification(string(mcp.CancelledNotificationMethod), engine.TypedNotification(s.handleCancelled))

	if caps.Logging != nil {
		var lopts []notify.LoggerOption
		if cfg.levelVar != nil {
			lopts = append(lopts, notify.WithSlogLevelVar(cfg.levelVar))
		}
		s.logging = notify.NewLogger(sink, lopts...)
		registerLogging(reg, s.logging)
	}
	if present, listChanged := caps.Roots(); present {
		var rootsSink notify.Sink
		if listChanged {
			rootsSink = sink
		}
		s.roots = NewRoots(rootsSink)
		s.roots.register(reg)
	}
	if caps.Resources != nil {
		s.resources = NewResources(sink, *caps.Resources)
		s.resources.SetPageSize(cfg.pageSize)
		s.resources.register(reg)
	}
	if caps.Tools != nil {
		s.tools = NewTools(sink, caps.Tools.ListChanged)
		s.tools.SetPageSize(cfg.pageSize)
		s.tools.register(reg)
	}
	if caps.Prompts != nil {
		s.prompts = NewPrompts(sink, caps.Prompts.ListChanged)
		s.prompts.SetPageSize(cfg.pageSize)
		s.prompts.register(reg)
	}
	if caps.Completions != nil {
		registerCompletion(reg, cfg.completer)
	}
	if cfg.sampler != nil {
		registerSampling(reg, cfg.sampler)
	}

	return s
}

// Handle dispatches a decoded message. Requests always yield a response or
// error response; everything else yields nil.
func (s *Server) Handle(ctx context.Context, msg jsonrpc.Message) jsonrpc.Message {
	return s.engine.Handle(ctx, msg)
}

// HandleRequest dispatches a request and never returns nil.
func (s *Server) HandleRequest(ctx context.Context, req *jsonrpc.Request) jsonrpc.Message {
	return s.engine.HandleRequest(ctx, req)
}

// HandleNotification dispatches a notification.
func (s *Server) HandleNotification(ctx context.Context, n *jsonrpc.Notification) error {
	return s.engine.HandleNotification(ctx, n)
}

// RegisterRequestHandler installs h for method, replacing any previous
// handler including the defaults.
func (s *Server) RegisterRequestHandler(method string, h RequestHandler) {
	s.engine.Registry().Register(method, h)
}

// RegisterNotificationHandler installs h for notification method.
func (s *Server) RegisterNotificationHandler(method string, h NotificationHandler) {
	s.engine.Registry().RegisterNotification(method, h)
}

// Methods lists the request methods currently served.
func (s *Server) Methods() []string { return s.engine.Registry().Methods() }

// Notifications is the receive side of the outbound notification queue.
// Exactly one consumer should drain it.
func (s *Server) Notifications() <-chan *jsonrpc.Notification { return s.out }

// Sink returns the send side of the notification queue.
func (s *Server) Sink() notify.Sink { return s.sink }

// Log emits a notifications/message when the logging capability is
// advertised and level passes the client's threshold.
func (s *Server) Log(ctx context.Context, level mcp.LoggingLevel, logger string, data any) error {
	if s.logging == nil {
		return nil
	}
	return s.logging.Log(ctx, level, logger, data)
}

// State returns the engine's current state.
func (s *Server) State() State { return s.engine.State() }

// Initialized reports whether the handshake has completed.
func (s *Server) Initialized() bool { return s.engine.CheckInitialized() == nil }

// Capabilities returns the advertised capabilities.
func (s *Server) Capabilities() mcp.ServerCapabilities { return s.caps }

// Tools returns the tools registry, or nil without the tools capability.
func (s *Server) Tools() *Tools { return s.tools }

// Resources returns the resources registry, or nil without the capability.
func (s *Server) Resources() *Resources { return s.resources }

// Prompts returns the prompts registry, or nil without the capability.
func (s *Server) Prompts() *Prompts { return s.prompts }

// Roots returns the root set, or nil without the experimental roots capability.
func (s *Server) Roots() *Roots { return s.roots }

// Logging returns the protocol logger, or nil without the logging capability.
func (s *Server) Logging() *notify.Logger { return s.logging }

// Cancelled reports whether the client cancelled request id, and why.
func (s *Server) Cancelled(id jsonrpc.RequestID) (string, bool) {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	reason, ok := s.cancelled[id]
	return reason, ok
}

func (s *Server) handleCancelled(ctx context.Context, n *mcp.CancelledNotification) error {
	s.log.InfoContext(ctx, "server.cancelled", slog.String("request_id", n.RequestID.String()), slog.String("reason", n.Reason))

	s.cancelMu.Lock()
	if _, ok := s.cancelled[n.RequestID]; !ok {
		s.cancelLog = append(s.cancelLog, n.RequestID)
	}
	s.cancelled[n.RequestID] = n.Reason
	if len(s.cancelLog) > maxCancellations {
		delete(s.cancelled, s.cancelLog[0])
		s.cancelLog = s.cancelLog[1:]
	}
	s.cancelMu.Unlock()

	if s.onCancel != nil {
		s.onCancel(ctx, n)
	}
	return nil
}
