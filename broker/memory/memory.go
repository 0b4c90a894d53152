// Package memory provides an in-memory implementation of the broker.Broker
// interface using Go channels for message delivery. It is suitable for
// single-process deployments and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/mcp-engine-go/broker"
	"github.com/ggoodman/mcp-engine-go/jsonrpc"
)

const (
	defaultRetention = 1024
	subscriberBuffer = 100
)

// Broker implements broker.Broker using in-memory channels and storage.
// State is local to the process.
type Broker struct {
	mu           sync.Mutex
	topics       map[string]*topic
	eventCounter atomic.Int64
	retention    int
}

// Option customizes a Broker.
type Option func(*Broker)

// WithRetention bounds the number of messages retained per topic for
// replay. Older messages are evicted first.
func WithRetention(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.retention = n
		}
	}
}

// topic is an isolated message log with its subscribers.
type topic struct {
	mu          sync.Mutex
	messages    []broker.Envelope
	subscribers map[*subscription]struct{}
	closed      bool
}

type subscription struct {
	topic  *topic
	replay []broker.Envelope
	ch     chan broker.Envelope
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
}

// New creates a memory broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		topics:    make(map[string]*topic),
		retention: defaultRetention,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) topic(name string) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[name]
	if !ok {
		t = &topic{subscribers: make(map[*subscription]struct{})}
		b.topics[name] = t
	}
	return t
}

// Publish implements broker.Broker.
func (b *Broker) Publish(ctx context.Context, name string, message jsonrpc.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := jsonrpc.Encode(message)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}

	eventID := strconv.FormatInt(b.eventCounter.Add(1), 10)
	env := broker.Envelope{ID: eventID, Data: data}

	t := b.topic(name)
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return "", fmt.Errorf("publish to %q: %w", name, broker.ErrTopicClosed)
	}

	t.messages = append(t.messages, env)
	if over := len(t.messages) - b.retention; over > 0 {
		t.messages = append(t.messages[:0:0], t.messages[over:]...)
	}

	for sub := range t.subscribers {
		select {
		case sub.ch <- env:
		default:
			// Slow subscriber; it can resume from its last seen event ID.
		}
	}

	return eventID, nil
}

// Subscribe implements broker.Broker.
func (b *Broker) Subscribe(ctx context.Context, name string, lastEventID string) (broker.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := b.topic(name)
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, fmt.Errorf("subscribe to %q: %w", name, broker.ErrTopicClosed)
	}

	sub := &subscription{
		topic: t,
		ch:    make(chan broker.Envelope, subscriberBuffer),
		done:  make(chan struct{}),
	}

	if lastEventID != "" {
		start := -1
		for i, msg := range t.messages {
			if msg.ID == lastEventID {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil, fmt.Errorf("subscribe to %q from %q: %w", name, lastEventID, broker.ErrUnknownEventID)
		}
		sub.replay = append([]broker.Envelope(nil), t.messages[start:]...)
	}

	t.subscribers[sub] = struct{}{}
	return sub, nil
}

// Cleanup implements broker.Broker. Open streams of the topic end with
// io.EOF once their buffered messages are consumed.
func (b *Broker) Cleanup(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	t, ok := b.topics[name]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	delete(b.topics, name)
	b.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for sub := range t.subscribers {
		sub.closeLocked()
	}
	t.subscribers = make(map[*subscription]struct{})
	t.messages = nil
	return nil
}

// Next implements broker.Stream.
func (s *subscription) Next(ctx context.Context) (broker.Envelope, error) {
	if s.closed.Load() {
		return broker.Envelope{}, io.EOF
	}
	if len(s.replay) > 0 {
		env := s.replay[0]
		s.replay = s.replay[1:]
		return env, nil
	}

	select {
	case env := <-s.ch:
		return env, nil
	default:
	}

	select {
	case env := <-s.ch:
		return env, nil
	case <-s.done:
		return broker.Envelope{}, io.EOF
	case <-ctx.Done():
		return broker.Envelope{}, ctx.Err()
	}
}

// Close implements broker.Stream.
func (s *subscription) Close() error {
	s.closed.Store(true)
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()
	delete(s.topic.subscribers, s)
	s.closeLocked()
	return nil
}

// closeLocked signals the end of the stream. The caller holds topic.mu.
func (s *subscription) closeLocked() {
	s.once.Do(func() { close(s.done) })
}

var (
	_ broker.Broker = (*Broker)(nil)
	_ broker.Stream = (*subscription)(nil)
)
