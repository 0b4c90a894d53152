// Package brokertest provides a conformance suite shared by broker
// implementations.
package brokertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-engine-go/broker"
	"github.com/ggoodman/mcp-engine-go/jsonrpc"
)

// BrokerFactory creates a new broker instance for one test.
type BrokerFactory func(t *testing.T) broker.Broker

// RunBrokerTests runs the complete broker test suite against factory.
func RunBrokerTests(t *testing.T, factory BrokerFactory) {
	t.Run("PublishAndSubscribe", func(t *testing.T) {
		testPublishAndSubscribe(t, factory)
	})
	t.Run("ResumeFromLastEventID", func(t *testing.T) {
		testResumeFromLastEventID(t, factory)
	})
	t.Run("MultipleSubscribersToSameTopic", func(t *testing.T) {
		testMultipleSubscribers(t, factory)
	})
	t.Run("TopicIsolation", func(t *testing.T) {
		testTopicIsolation(t, factory)
	})
	t.Run("NextHonorsContext", func(t *testing.T) {
		testNextHonorsContext(t, factory)
	})
	t.Run("OrderedDelivery", func(t *testing.T) {
		testOrderedDelivery(t, factory)
	})
	t.Run("Forward", func(t *testing.T) {
		testForward(t, factory)
	})
	t.Run("Cleanup", func(t *testing.T) {
		testCleanup(t, factory)
	})
	t.Run("ResumeFromUnknownEventID", func(t *testing.T) {
		testResumeFromUnknownEventID(t, factory)
	})
}

// uniqueTopic keeps runs against shared backends from observing each other.
func uniqueTopic(name string) string {
	return fmt.Sprintf("%s-%d", name, time.Now().UnixNano())
}

func notification(t *testing.T, method string) *jsonrpc.Notification {
	t.Helper()
	n, err := jsonrpc.NewNotification(method, map[string]any{"method": method})
	if err != nil {
		t.Fatalf("build notification: %v", err)
	}
	return n
}

func publish(t *testing.T, b broker.Broker, topic, method string) string {
	t.Helper()
	id, err := b.Publish(t.Context(), topic, notification(t, method))
	if err != nil {
		t.Fatalf("publish %s: %v", method, err)
	}
	if id == "" {
		t.Fatalf("expected non-empty event ID")
	}
	return id
}

func subscribe(t *testing.T, b broker.Broker, topic, lastEventID string) broker.Stream {
	t.Helper()
	s, err := b.Subscribe(t.Context(), topic, lastEventID)
	if err != nil {
		t.Fatalf("subscribe %s: %v", topic, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// expectNext reads one envelope and checks the method of its message.
func expectNext(t *testing.T, s broker.Stream, method string) broker.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	env, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("next (want %s): %v", method, err)
	}
	msg, err := env.Message()
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	n, ok := msg.(*jsonrpc.Notification)
	if !ok {
		t.Fatalf("expected notification, got %#v", msg)
	}
	if n.Method != method {
		t.Fatalf("expected method %s, got %s", method, n.Method)
	}
	return env
}

// expectNothing asserts that no envelope arrives within d.
func expectNothing(t *testing.T, s broker.Stream, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), d)
	defer cancel()
	env, err := s.Next(ctx)
	if err == nil {
		t.Fatalf("unexpected envelope %s: %s", env.ID, env.Data)
	}
}

func cleanupBroker(t *testing.T, b broker.Broker, topics ...string) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, topic := range topics {
			if err := b.Cleanup(ctx, topic); err != nil {
				t.Logf("cleanup %s: %v", topic, err)
			}
		}
		if closer, ok := b.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				t.Logf("close broker: %v", err)
			}
		}
	})
}

func testPublishAndSubscribe(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	topic := uniqueTopic("pubsub")
	cleanupBroker(t, b, topic)

	publish(t, b, topic, "test/before")

	s := subscribe(t, b, topic, "")
	id := publish(t, b, topic, "test/after")

	env := expectNext(t, s, "test/after")
	if env.ID != id {
		t.Fatalf("expected event ID %s, got %s", id, env.ID)
	}
}

func testResumeFromLastEventID(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	topic := uniqueTopic("resume")
	cleanupBroker(t, b, topic)

	first := publish(t, b, topic, "test/one")
	second := publish(t, b, topic, "test/two")
	third := publish(t, b, topic, "test/three")

	s := subscribe(t, b, topic, first)
	if env := expectNext(t, s, "test/two"); env.ID != second {
		t.Fatalf("expected %s, got %s", second, env.ID)
	}
	if env := expectNext(t, s, "test/three"); env.ID != third {
		t.Fatalf("expected %s, got %s", third, env.ID)
	}

	fourth := publish(t, b, topic, "test/four")
	if env := expectNext(t, s, "test/four"); env.ID != fourth {
		t.Fatalf("expected %s, got %s", fourth, env.ID)
	}
}

func testMultipleSubscribers(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	topic := uniqueTopic("fanout")
	cleanupBroker(t, b, topic)

	s1 := subscribe(t, b, topic, "")
	s2 := subscribe(t, b, topic, "")
	id := publish(t, b, topic, "test/fanout")

	var wg sync.WaitGroup
	ids := make([]string, 2)
	for i, s := range []broker.Stream{s1, s2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
			defer cancel()
			env, err := s.Next(ctx)
			if err != nil {
				t.Errorf("subscriber %d: %v", i, err)
				return
			}
			ids[i] = env.ID
		}()
	}
	wg.Wait()

	for i, got := range ids {
		if got != id {
			t.Fatalf("subscriber %d: expected event ID %s, got %q", i, id, got)
		}
	}
}

func testTopicIsolation(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	topicA := uniqueTopic("iso-a")
	topicB := uniqueTopic("iso-b")
	cleanupBroker(t, b, topicA, topicB)

	sa := subscribe(t, b, topicA, "")
	sb := subscribe(t, b, topicB, "")

	publish(t, b, topicA, "test/a")
	publish(t, b, topicB, "test/b")

	expectNext(t, sa, "test/a")
	expectNext(t, sb, "test/b")
	expectNothing(t, sa, 200*time.Millisecond)
}

func testNextHonorsContext(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	topic := uniqueTopic("ctx")
	cleanupBroker(t, b, topic)

	s := subscribe(t, b, topic, "")

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := s.Next(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected context.DeadlineExceeded, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("next did not return after its context expired")
	}
}

func testOrderedDelivery(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	topic := uniqueTopic("order")
	cleanupBroker(t, b, topic)

	s := subscribe(t, b, topic, "")
	const n = 20
	for i := range n {
		publish(t, b, topic, fmt.Sprintf("test/%02d", i))
	}
	for i := range n {
		expectNext(t, s, fmt.Sprintf("test/%02d", i))
	}
}

func testForward(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	topic := uniqueTopic("forward")
	cleanupBroker(t, b, topic)

	s := subscribe(t, b, topic, "")

	ch := make(chan *jsonrpc.Notification, 2)
	ch <- notification(t, "notifications/tools/list_changed")
	ch <- notification(t, "notifications/message")
	close(ch)

	if err := broker.Forward(t.Context(), b, topic, ch); err != nil {
		t.Fatalf("forward: %v", err)
	}
	expectNext(t, s, "notifications/tools/list_changed")
	expectNext(t, s, "notifications/message")
}

func testCleanup(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	topic := uniqueTopic("cleanup")
	cleanupBroker(t, b, topic)

	id := publish(t, b, topic, "test/gone")
	if err := b.Cleanup(t.Context(), topic); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	// Resuming from a removed event either fails or yields nothing.
	s, err := b.Subscribe(t.Context(), topic, id)
	if err != nil {
		return
	}
	defer s.Close()
	expectNothing(t, s, 300*time.Millisecond)
}

func testResumeFromUnknownEventID(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	topic := uniqueTopic("unknown")
	cleanupBroker(t, b, topic)

	publish(t, b, topic, "test/known")

	_, err := b.Subscribe(t.Context(), topic, "non-existent-id")
	if !errors.Is(err, broker.ErrUnknownEventID) {
		t.Fatalf("expected ErrUnknownEventID, got %v", err)
	}
}
