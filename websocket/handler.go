package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/ggoodman/mcp-engine-go/broker"
	"github.com/ggoodman/mcp-engine-go/internal/logctx"
	"github.com/ggoodman/mcp-engine-go/transport"
)

// ServerFactory builds the server for one connection.
type ServerFactory func(ctx context.Context) (transport.Server, error)

// Handler accepts websocket connections and serves each with its own server.
type Handler struct {
	factory ServerFactory
	log     *slog.Logger
	broker  broker.Broker
	topic   string
	ws      websocket.Server
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithLogger overrides the handler's logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithBroker relays every message published to topic to every connection,
// in addition to the connection's own notifications.
func WithBroker(b broker.Broker, topic string) HandlerOption {
	return func(h *Handler) {
		h.broker = b
		h.topic = topic
	}
}

// NewHandler returns an http.Handler upgrading requests to websocket
// connections served by servers from factory.
func NewHandler(factory ServerFactory, opts ...HandlerOption) *Handler {
	h := &Handler{factory: factory, log: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	h.ws = websocket.Server{Handler: h.serveConn}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.ws.ServeHTTP(w, r)
}

func (h *Handler) serveConn(conn *websocket.Conn) {
	req := conn.Request()
	ctx := logctx.WithConnData(req.Context(), &logctx.ConnData{
		ConnID:     uuid.NewString(),
		Transport:  "websocket",
		RemoteAddr: req.RemoteAddr,
	})
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := NewTransport(conn, WithTransportLogger(h.log))
	defer t.Close()

	srv, err := h.factory(ctx)
	if err != nil {
		h.log.ErrorContext(ctx, "websocket.server.create_fail", slog.String("err", err.Error()))
		return
	}

	// Subscribe before serving so that nothing published after the
	// handshake is missed.
	var relay broker.Stream
	if h.broker != nil {
		relay, err = h.broker.Subscribe(ctx, h.topic, "")
		if err != nil {
			h.log.ErrorContext(ctx, "websocket.broker.subscribe_fail", slog.String("err", err.Error()))
			return
		}
		defer relay.Close()
	}

	h.log.InfoContext(ctx, "websocket.conn.open")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		err := transport.Serve(gctx, t, srv, transport.WithLogger(h.log))
		if errors.Is(err, ErrConnectionClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return transport.Pump(gctx, t, srv.Notifications())
	})
	if relay != nil {
		g.Go(func() error {
			return h.relay(gctx, relay, t)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		h.log.ErrorContext(ctx, "websocket.conn.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "websocket.conn.close")
}

// relay copies broker messages to the connection until ctx is done or the
// stream ends.
func (h *Handler) relay(ctx context.Context, s broker.Stream, t *Transport) error {
	for {
		env, err := s.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		msg, err := env.Message()
		if err != nil {
			h.log.WarnContext(ctx, "websocket.relay.decode_fail", slog.String("err", err.Error()))
			continue
		}
		if err := t.Send(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
