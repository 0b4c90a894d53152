package httptransport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/transport"
)

// ErrEndpointRequired is returned by New when no endpoint is given.
var ErrEndpointRequired = errors.New("http transport requires an endpoint")

// Transport POSTs each outbound message to a fixed endpoint.
type Transport struct {
	endpoint string
	client   *http.Client
	headers  http.Header
	closed   atomic.Bool
}

// Option customizes a Transport.
type Option func(*Transport)

// WithHTTPClient overrides the client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(t *Transport) {
		t.headers.Add(key, value)
	}
}

// New constructs a Transport for endpoint.
func New(endpoint string, opts ...Option) (*Transport, error) {
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}
	t := &Transport{
		endpoint: endpoint,
		client:   http.DefaultClient,
		headers:  make(http.Header),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

var _ transport.Transport = (*Transport)(nil)

// Send POSTs msg as application/json. Any non-2xx status fails the send and
// the message is considered undelivered.
func (t *Transport) Send(ctx context.Context, msg jsonrpc.Message) error {
	if t.closed.Load() {
		return mcp.WrapError(mcp.KindTransport, transport.ErrClosed, "send")
	}
	body, err := transport.Encode(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return mcp.WrapError(mcp.KindTransport, err, "build http request")
	}
	for k, vs := range t.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", jsonMediaType.String())
	req.Header.Set("Accept", jsonMediaType.String())

	resp, err := t.client.Do(req)
	if err != nil {
		return mcp.WrapError(mcp.KindTransport, err, "http request failed")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return mcp.NewError(mcp.KindTransport, "HTTP request failed with status: %d", resp.StatusCode)
	}
	return nil
}

// Receive always fails: the HTTP transport is send-only.
func (t *Transport) Receive(ctx context.Context) (jsonrpc.Message, error) {
	return nil, mcp.NewError(mcp.KindTransport, "receive not supported by the http transport")
}

// Close marks the transport closed. Idle connections of the underlying
// client are released.
func (t *Transport) Close() error {
	if t.closed.CompareAndSwap(false, true) {
		t.client.CloseIdleConnections()
	}
	return nil
}
