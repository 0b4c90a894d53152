// Package transport defines the message transport contract shared by the
// stdio, HTTP and websocket transports, and the run loops that connect a
// transport to a server.
package transport

import (
	"context"
	"errors"

	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
)

// ErrClosed is wrapped by Send and Receive after Close.
var ErrClosed = errors.New("transport closed")

// Transport moves whole JSON-RPC messages between peers. Send must be safe
// for concurrent use; Receive is called from a single goroutine. Receive
// returns io.EOF when the peer ends the stream cleanly.
type Transport interface {
	Send(ctx context.Context, msg jsonrpc.Message) error
	Receive(ctx context.Context) (jsonrpc.Message, error)
	Close() error
}

// Handler consumes inbound messages and optionally produces a reply.
type Handler interface {
	Handle(ctx context.Context, msg jsonrpc.Message) jsonrpc.Message
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg jsonrpc.Message) jsonrpc.Message

func (f HandlerFunc) Handle(ctx context.Context, msg jsonrpc.Message) jsonrpc.Message {
	return f(ctx, msg)
}

// Server is a Handler that also emits notifications, such as
// *mcpservice.Server.
type Server interface {
	Handler
	Notifications() <-chan *jsonrpc.Notification
}

// Decode parses one framed message. Any failure, malformed JSON included,
// is an InvalidRequest error.
func Decode(data []byte) (jsonrpc.Message, error) {
	msg, err := jsonrpc.Decode(data)
	if err != nil {
		return nil, mcp.WrapError(mcp.KindInvalidRequest, err, "invalid message")
	}
	return msg, nil
}

// Encode serializes msg for the wire.
func Encode(msg jsonrpc.Message) ([]byte, error) {
	b, err := jsonrpc.Encode(msg)
	if err != nil {
		return nil, mcp.WrapError(mcp.KindSerialization, err, "encode message")
	}
	return b, nil
}

// IsDecodeError reports whether err came from decoding a single inbound
// message, after which the stream is still usable.
func IsDecodeError(err error) bool {
	return errors.Is(err, mcp.ErrInvalidRequest)
}
