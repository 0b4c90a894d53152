package stdio

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ggoodman/mcp-engine-go/internal/logctx"
	"github.com/ggoodman/mcp-engine-go/transport"
)

// Serve runs srv over a stdio Transport built from opts until the input
// ends or ctx is done. Responses are written in request order; notifications
// queued by srv are written as they arrive, between responses.
func Serve(ctx context.Context, srv transport.Server, opts ...Option) error {
	t := New(opts...)
	defer t.Close()

	ctx = logctx.WithConnData(ctx, &logctx.ConnData{
		ConnID:    uuid.NewString(),
		Transport: "stdio",
	})
	t.l.InfoContext(ctx, "stdio.serve.start")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return transport.Serve(gctx, t, srv, transport.WithLogger(t.l))
	})
	g.Go(func() error {
		return transport.Pump(gctx, t, srv.Notifications())
	})

	if err := g.Wait(); err != nil {
		if !errors.Is(err, context.Canceled) {
			t.l.ErrorContext(ctx, "stdio.serve.fail", slog.String("err", err.Error()))
		}
		return err
	}
	t.l.InfoContext(ctx, "stdio.serve.stop")
	return nil
}
