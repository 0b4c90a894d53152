package notify

import (
	"context"
	"log/slog"

	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
)

// DefaultQueueSize is the buffer used by NewQueue when size <= 0.
const DefaultQueueSize = 64

// Sink is the send side of an outbound notification queue. Copies of a Sink
// share the same queue, so one Sink can be handed to every component that
// emits notifications while a single consumer drains the receive side. The
// zero Sink discards everything.
//
// Sending never blocks: when the queue is full the notification is dropped
// and a warning is logged.
type Sink struct {
	ch  chan<- *jsonrpc.Notification
	log *slog.Logger
}

// NewQueue creates a notification queue and returns its send and receive
// sides.
func NewQueue(size int) (Sink, <-chan *jsonrpc.Notification) {
	if size <= 0 {
		size = DefaultQueueSize
	}
	ch := make(chan *jsonrpc.Notification, size)
	return Sink{ch: ch}, ch
}

// Enabled reports whether notifications sent to s go anywhere.
func (s Sink) Enabled() bool {
	return s.ch != nil
}

// WithLogger returns a copy of s that reports dropped notifications to l.
func (s Sink) WithLogger(l *slog.Logger) Sink {
	s.log = l
	return s
}

// Send enqueues n, or drops it when the queue is full. It reports whether n
// was enqueued.
func (s Sink) Send(ctx context.Context, n *jsonrpc.Notification) bool {
	if s.ch == nil || n == nil {
		return false
	}
	select {
	case s.ch <- n:
		return true
	default:
	}
	log := s.log
	if log == nil {
		log = slog.Default()
	}
	log.WarnContext(ctx, "notify.queue.drop",
		slog.String("method", n.Method),
		slog.Int("capacity", cap(s.ch)))
	return false
}

// Notify marshals params and enqueues a notification for method. Only an
// encoding failure is reported; a full queue drops the notification.
func (s Sink) Notify(ctx context.Context, method mcp.Method, params any) error {
	if s.ch == nil {
		return nil
	}
	n, err := jsonrpc.NewNotification(string(method), params)
	if err != nil {
		return mcp.WrapError(mcp.KindSerialization, err, "encode %s", method)
	}
	s.Send(ctx, n)
	return nil
}
