package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/sampling"
	"github.com/ggoodman/mcp-engine-go/transport"
)

const (
	cancelSendTimeout = 5 * time.Second
	replySendTimeout  = 30 * time.Second
)

func (c *Client) readLoop(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		msg, err := c.t.Receive(ctx)
		if err != nil {
			if transport.IsDecodeError(err) {
				c.log.WarnContext(ctx, "client.receive.decode_fail", slog.String("err", err.Error()))
				continue
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				c.shutdown(ErrClientClosed)
				return
			}
			c.log.ErrorContext(ctx, "client.receive.fail", slog.String("err", err.Error()))
			c.shutdown(err)
			return
		}

		switch m := msg.(type) {
		case *jsonrpc.Response:
			c.deliver(ctx, m.ID, m)
		case *jsonrpc.ErrorResponse:
			if m.ID == nil {
				c.log.WarnContext(ctx, "client.error.unrouted",
					slog.Int("code", int(m.Error.Code)),
					slog.String("message", m.Error.Message))
				continue
			}
			c.deliver(ctx, *m.ID, m)
		case *jsonrpc.Request:
			go c.handleRequest(ctx, m)
		case *jsonrpc.Notification:
			if c.onNotification != nil {
				c.onNotification(ctx, m)
			}
		}
	}
}

// handleRequest answers a request the server sent to this client.
func (c *Client) handleRequest(ctx context.Context, req *jsonrpc.Request) {
	result, err := c.serve(ctx, req)

	var reply jsonrpc.Message
	if err != nil {
		id := req.ID
		reply = mcp.ToResponse(&id, err)
	} else {
		res, encErr := jsonrpc.NewResponse(req.ID, result)
		if encErr != nil {
			id := req.ID
			reply = mcp.ToResponse(&id, mcp.WrapError(mcp.KindSerialization, encErr, "encode result"))
		} else {
			reply = res
		}
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replySendTimeout)
	defer cancel()
	if err := c.t.Send(sendCtx, reply); err != nil {
		c.log.WarnContext(ctx, "client.reply.send_fail",
			slog.String("method", req.Method),
			slog.String("err", err.Error()))
	}
}

func (c *Client) serve(ctx context.Context, req *jsonrpc.Request) (any, error) {
	method := mcp.Method(req.Method)
	switch method {
	case mcp.PingMethod:
		return &mcp.EmptyResult{}, nil
	case mcp.RootsListMethod:
		c.rootsMu.RLock()
		enabled, roots := c.rootsConfig, append([]mcp.Root{}, c.roots...)
		c.rootsMu.RUnlock()
		if !enabled {
			break
		}
		return &mcp.ListRootsResult{Roots: roots}, nil
	case mcp.SamplingCreateMessageMethod:
		if c.sampler == nil {
			break
		}
		params, err := mcp.DecodeParams(method, req.Params)
		if err != nil {
			return nil, mcp.WrapError(mcp.KindInvalidParams, err, "invalid params")
		}
		return sampling.Run(ctx, c.sampler, params.(*mcp.CreateMessageRequest))
	}
	return nil, mcp.NewError(mcp.KindMethodNotFound, "method not found: %s", req.Method)
}
