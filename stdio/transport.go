package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/transport"
)

// Transport frames JSON-RPC messages as newline-delimited JSON over a
// reader and a writer, by default os.Stdin and os.Stdout.
type Transport struct {
	r io.Reader
	w io.Writer
	l *slog.Logger

	out *writeMux

	readOnce sync.Once
	lines    chan readResult

	closeOnce sync.Once
	closed    chan struct{}
}

type readResult struct {
	line []byte
	err  error
}

// New constructs a stdio Transport with defaults and applies options.
func New(opts ...Option) *Transport {
	t := &Transport{
		r:      os.Stdin,
		w:      os.Stdout,
		l:      slog.Default(),
		lines:  make(chan readResult),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.out = &writeMux{w: bufio.NewWriter(t.w)}
	return t
}

var _ transport.Transport = (*Transport)(nil)

// Send writes msg followed by a newline and flushes. Concurrent calls never
// interleave: each message is written whole or not at all.
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
	if err := t.out.writeLine(b); err != nil {
		return mcp.WrapError(mcp.KindTransport, err, "write message")
	}
	return nil
}

// Receive returns the next message. Blank lines are skipped. A line that
// does not decode yields a decode error and the stream stays usable; the end
// of input yields io.EOF.
func (t *Transport) Receive(ctx context.Context) (jsonrpc.Message, error) {
	t.readOnce.Do(func() { go t.readLoop() })

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.closed:
			return nil, mcp.WrapError(mcp.KindTransport, transport.ErrClosed, "receive")
		case res, ok := <-t.lines:
			if !ok {
				return nil, io.EOF
			}
			if res.err != nil {
				return nil, mcp.WrapError(mcp.KindTransport, res.err, "read message")
			}
			line := bytes.TrimSpace(res.line)
			if len(line) == 0 {
				continue
			}
			return transport.Decode(line)
		}
	}
}

// readLoop owns the reader. Lines are read with bufio.Reader so that
// messages are not bounded by a scanner token size.
func (t *Transport) readLoop() {
	defer close(t.lines)
	br := bufio.NewReader(t.r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			select {
			case t.lines <- readResult{line: line}:
			case <-t.closed:
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			select {
			case t.lines <- readResult{err: err}:
			case <-t.closed:
			}
			return
		}
	}
}

// Close stops the transport. Readers and writers other than the process's
// standard streams are closed when they implement io.Closer.
func (t *Transport) Close() error {
	var errs []error
	t.closeOnce.Do(func() {
		close(t.closed)
		if c, ok := t.r.(io.Closer); ok && t.r != io.Reader(os.Stdin) {
			errs = append(errs, c.Close())
		}
		if c, ok := t.w.(io.Closer); ok && t.w != io.Writer(os.Stdout) {
			errs = append(errs, c.Close())
		}
	})
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close stdio transport: %w", err)
	}
	return nil
}

// writeMux serializes whole-line writes to the underlying writer.
type writeMux struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func (m *writeMux) writeLine(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.w.Write(b); err != nil {
		return err
	}
	if err := m.w.WriteByte('\n'); err != nil {
		return err
	}
	return m.w.Flush()
}
