package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
)

// ServeOption configures Serve.
type ServeOption func(*serveConfig)

type serveConfig struct {
	log *slog.Logger
}

// WithLogger sets the logger used by Serve.
func WithLogger(l *slog.Logger) ServeOption {
	return func(c *serveConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// Serve runs the lockstep loop: receive one message, hand it to h, send the
// reply if there is one. Messages that fail to decode are answered with an
// error response carrying a null id and the loop continues. Serve returns
// nil when the peer closes the stream and ctx.Err() when ctx is done.
func Serve(ctx context.Context, t Transport, h Handler, opts ...ServeOption) error {
	cfg := serveConfig{log: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.log

	for {
		msg, err := t.Receive(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			log.DebugContext(ctx, "transport.serve.eof")
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case IsDecodeError(err):
			log.InfoContext(ctx, "transport.serve.decode_fail", slog.String("err", err.Error()))
			if err := t.Send(ctx, mcp.ToResponse(nil, err)); err != nil {
				return err
			}
			continue
		default:
			log.ErrorContext(ctx, "transport.serve.receive_fail", slog.String("err", err.Error()))
			return err
		}

		reply := h.Handle(ctx, msg)
		if reply == nil {
			continue
		}
		if err := t.Send(ctx, reply); err != nil {
			log.ErrorContext(ctx, "transport.serve.send_fail", slog.String("err", err.Error()))
			return err
		}
	}
}

// Pump forwards notifications from ch to t until ch is closed or ctx is
// done. It is the single consumer of a server's notification queue.
func Pump(ctx context.Context, t Transport, ch <-chan *jsonrpc.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			if err := t.Send(ctx, n); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
