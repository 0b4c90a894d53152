package notify

import (
	"context"
	"sync"

	"github.com/ggoodman/mcp-engine-go/mcp"
)

// ChangeNotifier signals that a list (tools, resources, prompts, roots) has
// changed. Each Notify emits the configured list_changed notification into
// the sink, when one is attached, and wakes in-process subscribers.
type ChangeNotifier struct {
	sink   Sink
	method mcp.Method

	mu          sync.RWMutex
	subscribers []chan struct{}
	closed      bool
}

// NewChangeNotifier creates a notifier that emits method into sink. A zero
// sink makes the notifier purely in-process.
func NewChangeNotifier(sink Sink, method mcp.Method) *ChangeNotifier {
	return &ChangeNotifier{sink: sink, method: method}
}

// Method returns the notification method emitted on change.
func (cn *ChangeNotifier) Method() mcp.Method { return cn.method }

// Notify emits the change. In-process fan-out never blocks: a subscriber
// that has not consumed the previous signal simply coalesces.
func (cn *ChangeNotifier) Notify(ctx context.Context) error {
	cn.mu.RLock()
	if cn.closed {
		cn.mu.RUnlock()
		return nil
	}
	for _, ch := range cn.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	cn.mu.RUnlock()

	return cn.sink.Notify(ctx, cn.method, struct{}{})
}

// Subscriber returns a channel that receives a signal whenever Notify is
// called. The channel is closed by Close.
func (cn *ChangeNotifier) Subscriber() <-chan struct{} {
	cn.mu.Lock()
	defer cn.mu.Unlock()

	ch := make(chan struct{}, 1)
	if cn.closed {
		close(ch)
		return ch
	}
	cn.subscribers = append(cn.subscribers, ch)
	return ch
}

// Close stops fan-out and closes every subscriber channel.
func (cn *ChangeNotifier) Close() {
	cn.mu.Lock()
	if cn.closed {
		cn.mu.Unlock()
		return
	}
	cn.closed = true
	subs := cn.subscribers
	cn.subscribers = nil
	cn.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}
