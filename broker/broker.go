// Package broker fans JSON-RPC messages out to every listener of a topic.
//
// A server's notification queue has exactly one consumer. When the same
// notifications must reach many connections, or many processes, the queue is
// drained into a topic with Forward and every connection subscribes to that
// topic. Implementations live in the memory and redis subpackages.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/ggoodman/mcp-engine-go/jsonrpc"
)

var (
	// ErrTopicClosed is returned when publishing to or subscribing to a topic
	// that is being cleaned up.
	ErrTopicClosed = errors.New("topic closed")
	// ErrUnknownEventID is returned by Subscribe when lastEventID does not
	// name a retained event.
	ErrUnknownEventID = errors.New("unknown event id")
)

// Broker handles message queuing and delivery with topic isolation and
// ordered delivery within each topic.
type Broker interface {
	// Publish appends message to topic and returns its event ID.
	Publish(ctx context.Context, topic string, message jsonrpc.Message) (eventID string, err error)

	// Subscribe to topic messages. If lastEventID is empty the stream starts
	// with the next published message; otherwise it resumes after that ID.
	Subscribe(ctx context.Context, topic string, lastEventID string) (Stream, error)

	// Cleanup removes all retained messages of topic and ends its streams
	// where the implementation can signal them.
	Cleanup(ctx context.Context, topic string) error
}

// Stream provides ordered message consumption within a topic. A Stream is
// meant for a single consumer.
type Stream interface {
	// Next blocks until the next message is available or ctx is done. It
	// returns io.EOF once the stream has been closed.
	Next(ctx context.Context) (Envelope, error)

	// Close releases resources associated with this stream.
	Close() error
}

// Envelope wraps a published message with its event ID.
type Envelope struct {
	// ID is unique and increasing within the topic.
	ID string `json:"id"`
	// Data is the encoded JSON-RPC message.
	Data []byte `json:"data"`
}

// Message decodes the enveloped JSON-RPC message.
func (e Envelope) Message() (jsonrpc.Message, error) {
	msg, err := jsonrpc.Decode(e.Data)
	if err != nil {
		return nil, fmt.Errorf("decode envelope %s: %w", e.ID, err)
	}
	return msg, nil
}

// Forward publishes every notification received on ch to topic until ch is
// closed or ctx is done. It is intended as the single consumer of a server's
// notification queue.
func Forward(ctx context.Context, b Broker, topic string, ch <-chan *jsonrpc.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := b.Publish(ctx, topic, n); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("forward %s to %q: %w", n.Method, topic, err)
			}
		}
	}
}
