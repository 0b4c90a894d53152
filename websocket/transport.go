// Package websocket carries MCP messages over a full-duplex websocket, one
// JSON-RPC message per text frame.
//
// Inbound frames are decoded by a reader goroutine as they arrive; frames
// that are not valid JSON-RPC are dropped. Dial opens a client connection and
// NewHandler serves one fresh server per accepted connection.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/transport"
)

// ErrConnectionClosed is wrapped by Receive once the connection has closed
// and every queued message has been consumed.
var ErrConnectionClosed = errors.New("connection closed")

const defaultQueueSize = 64

// Transport is a websocket connection speaking JSON-RPC text frames.
type Transport struct {
	conn *websocket.Conn
	log  *slog.Logger

	queue      chan jsonrpc.Message
	readerDone chan struct{}

	sendMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// TransportOption customizes a Transport.
type TransportOption func(*transportConfig)

type transportConfig struct {
	log       *slog.Logger
	queueSize int
}

// WithTransportLogger sets the logger used for dropped frames.
func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(c *transportConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithQueueSize bounds the number of decoded messages waiting for Receive.
func WithQueueSize(n int) TransportOption {
	return func(c *transportConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// NewTransport wraps an established connection and starts its reader.
func NewTransport(conn *websocket.Conn, opts ...TransportOption) *Transport {
	cfg := transportConfig{log: slog.Default(), queueSize: defaultQueueSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	t := &Transport{
		conn:       conn,
		log:        cfg.log,
		queue:      make(chan jsonrpc.Message, cfg.queueSize),
		readerDone: make(chan struct{}),
		closed:     make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Dial connects to a websocket MCP endpoint.
func Dial(ctx context.Context, url, origin string, opts ...TransportOption) (*Transport, error) {
	cfg, err := websocket.NewConfig(url, origin)
	if err != nil {
		return nil, mcp.WrapError(mcp.KindTransport, err, "websocket config")
	}
	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, mcp.WrapError(mcp.KindTransport, err, "websocket dial %s", url)
	}
	return NewTransport(conn, opts...), nil
}

var _ transport.Transport = (*Transport)(nil)

func (t *Transport) readLoop() {
	defer close(t.readerDone)
	for {
		var frame string
		if err := websocket.Message.Receive(t.conn, &frame); err != nil {
			return
		}
		msg, err := transport.Decode([]byte(frame))
		if err != nil {
			t.log.Debug("websocket.frame.drop", slog.String("err", err.Error()))
			continue
		}
		select {
		case t.queue <- msg:
		case <-t.closed:
			return
		}
	}
}

// Send writes msg as one text frame.
func (t *Transport) Send(ctx context.Context, msg jsonrpc.Message) error {
	select {
	case <-t.closed:
		return mcp.WrapError(mcp.KindTransport, transport.ErrClosed, "send")
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := transport.Encode(msg)
	if err != nil {
		return err
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if err := websocket.Message.Send(t.conn, string(b)); err != nil {
		return mcp.WrapError(mcp.KindTransport, err, "websocket write")
	}
	return nil
}

// Receive returns the next queued message. Once the connection has closed
// and the queue is empty it fails with a Transport error wrapping
// ErrConnectionClosed.
func (t *Transport) Receive(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case msg := <-t.queue:
		return msg, nil
	default:
	}

	select {
	case msg := <-t.queue:
		return msg, nil
	case <-t.readerDone:
		select {
		case msg := <-t.queue:
			return msg, nil
		default:
			return nil, mcp.WrapError(mcp.KindTransport, ErrConnectionClosed, "connection closed")
		}
	case <-t.closed:
		return nil, mcp.WrapError(mcp.KindTransport, ErrConnectionClosed, "connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
