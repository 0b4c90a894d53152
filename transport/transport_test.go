package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
)

// scripted replays a fixed sequence of Receive results and records sends.
type scripted struct {
	mu      sync.Mutex
	inbound []result
	sent    []jsonrpc.Message
	sendErr error
}

type result struct {
	msg jsonrpc.Message
	err error
}

func (s *scripted) Send(ctx context.Context, msg jsonrpc.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *scripted) Receive(ctx context.Context) (jsonrpc.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inbound) == 0 {
		return nil, io.EOF
	}
	r := s.inbound[0]
	s.inbound = s.inbound[1:]
	return r.msg, r.err
}

func (s *scripted) Close() error { return nil }

func (s *scripted) messages() []jsonrpc.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]jsonrpc.Message(nil), s.sent...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decode(t *testing.T, raw string) result {
	t.Helper()
	msg, err := Decode([]byte(raw))
	return result{msg: msg, err: err}
}

func echoHandler() Handler {
	return HandlerFunc(func(ctx context.Context, msg jsonrpc.Message) jsonrpc.Message {
		req, ok := msg.(*jsonrpc.Request)
		if !ok {
			return nil
		}
		res, _ := jsonrpc.NewResponse(req.ID, map[string]string{"method": req.Method})
		return res
	})
}

func TestDecodeClassification(t *testing.T) {
	t.Parallel()

	if _, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)); err != nil {
		t.Fatalf("valid request: %v", err)
	}

	for _, raw := range []string{`{not json`, `{"jsonrpc":"2.0","id":`} {
		_, err := Decode([]byte(raw))
		if !errors.Is(err, mcp.ErrInvalidRequest) || !IsDecodeError(err) {
			t.Fatalf("%s: expected invalid request, got %v", raw, err)
		}
		if errors.Is(err, mcp.ErrSerialization) {
			t.Fatalf("%s: malformed JSON must not surface as a serialization error", raw)
		}
		if code := mcp.ToResponse(nil, err).Error.Code; code != jsonrpc.ErrorCodeInvalidRequest {
			t.Fatalf("%s: expected wire code %d, got %d", raw, jsonrpc.ErrorCodeInvalidRequest, code)
		}
	}

	_, err := Decode([]byte(`{"jsonrpc":"1.0","id":1,"method":"ping"}`))
	if !errors.Is(err, mcp.ErrInvalidRequest) || !IsDecodeError(err) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if code := mcp.AsError(err).Code(); code != jsonrpc.ErrorCodeInvalidRequest {
		t.Fatalf("expected invalid request code, got %d", code)
	}

	if IsDecodeError(mcp.NewError(mcp.KindTransport, "broken pipe")) {
		t.Fatalf("transport failures are not decode errors")
	}
}

func TestServeAnswersRequestsAndSkipsNotifications(t *testing.T) {
	t.Parallel()
	tr := &scripted{inbound: []result{
		decode(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`),
		decode(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`),
		decode(t, `{"jsonrpc":"2.0","id":"b","method":"tools/list"}`),
	}}

	if err := Serve(t.Context(), tr, echoHandler(), WithLogger(quietLogger())); err != nil {
		t.Fatalf("serve: %v", err)
	}

	sent := tr.messages()
	if len(sent) != 2 {
		t.Fatalf("expected two replies, got %d", len(sent))
	}
	for i, want := range []jsonrpc.RequestID{jsonrpc.NewIntID(1), jsonrpc.NewStringID("b")} {
		res, ok := sent[i].(*jsonrpc.Response)
		if !ok || !res.ID.Equal(want) {
			t.Fatalf("reply %d: expected response for %s, got %#v", i, want, sent[i])
		}
	}
}

func TestServeContinuesAfterDecodeErrors(t *testing.T) {
	t.Parallel()
	tr := &scripted{inbound: []result{
		decode(t, `garbage`),
		decode(t, `{"jsonrpc":"2.0","id":true,"method":"ping"}`),
		decode(t, `{"jsonrpc":"2.0","id":7,"method":"ping"}`),
	}}

	if err := Serve(t.Context(), tr, echoHandler(), WithLogger(quietLogger())); err != nil {
		t.Fatalf("serve: %v", err)
	}

	sent := tr.messages()
	if len(sent) != 3 {
		t.Fatalf("expected three messages, got %d", len(sent))
	}
	for i, code := range []jsonrpc.ErrorCode{jsonrpc.ErrorCodeInvalidRequest, jsonrpc.ErrorCodeInvalidRequest} {
		er, ok := sent[i].(*jsonrpc.ErrorResponse)
		if !ok {
			t.Fatalf("message %d: expected error response, got %#v", i, sent[i])
		}
		if er.ID != nil {
			t.Fatalf("message %d: expected null id, got %s", i, er.ID)
		}
		if er.Error.Code != code {
			t.Fatalf("message %d: expected code %d, got %d", i, code, er.Error.Code)
		}
	}
	if res, ok := sent[2].(*jsonrpc.Response); !ok || !res.ID.Equal(jsonrpc.NewIntID(7)) {
		t.Fatalf("expected the valid request to be answered, got %#v", sent[2])
	}
}

func TestServeStopsOnTransportFailure(t *testing.T) {
	t.Parallel()
	boom := mcp.NewError(mcp.KindTransport, "connection reset")
	tr := &scripted{inbound: []result{{err: boom}}}

	if err := Serve(t.Context(), tr, echoHandler(), WithLogger(quietLogger())); !errors.Is(err, mcp.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}

	tr = &scripted{
		inbound: []result{decode(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)},
		sendErr: boom,
	}
	if err := Serve(t.Context(), tr, echoHandler(), WithLogger(quietLogger())); !errors.Is(err, mcp.ErrTransport) {
		t.Fatalf("expected send failure to end the loop, got %v", err)
	}
}

func TestPump(t *testing.T) {
	t.Parallel()
	tr := &scripted{}
	ch := make(chan *jsonrpc.Notification, 2)
	for _, m := range []string{"notifications/tools/list_changed", "notifications/message"} {
		n, _ := jsonrpc.NewNotification(m, nil)
		ch <- n
	}
	close(ch)

	if err := Pump(t.Context(), tr, ch); err != nil {
		t.Fatalf("pump: %v", err)
	}
	sent := tr.messages()
	if len(sent) != 2 || sent[1].(*jsonrpc.Notification).Method != "notifications/message" {
		t.Fatalf("unexpected pumped messages: %#v", sent)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	if err := Pump(ctx, tr, make(chan *jsonrpc.Notification)); err != nil {
		t.Fatalf("pump should stop quietly when ctx is done, got %v", err)
	}
}
