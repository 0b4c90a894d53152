package engine

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/ggoodman/mcp-engine-go/mcp"
)

// RequestHandler handles one request method. It returns a value that is
// marshaled as the response result, or an error that is mapped onto a wire
// error (see mcp.AsError).
type RequestHandler interface {
	HandleRequest(ctx context.Context, params json.RawMessage) (any, error)
}

// NotificationHandler handles one notification method.
type NotificationHandler interface {
	HandleNotification(ctx context.Context, params json.RawMessage) error
}

// RequestHandlerFunc adapts a function to RequestHandler.
type RequestHandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

func (f RequestHandlerFunc) HandleRequest(ctx context.Context, params json.RawMessage) (any, error) {
	return f(ctx, params)
}

// NotificationHandlerFunc adapts a function to NotificationHandler.
type NotificationHandlerFunc func(ctx context.Context, params json.RawMessage) error

func (f NotificationHandlerFunc) HandleNotification(ctx context.Context, params json.RawMessage) error {
	return f(ctx, params)
}

// Typed wraps fn so that params are decoded into P before the call. A decode
// failure is reported as InvalidParams.
func Typed[P any, R any](fn func(ctx context.Context, params *P) (R, error)) RequestHandler {
	return RequestHandlerFunc(func(ctx context.Context, raw json.RawMessage) (any, error) {
		p := new(P)
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, p); err != nil {
				return nil, mcp.WrapError(mcp.KindInvalidParams, err, "invalid params")
			}
		}
		return fn(ctx, p)
	})
}

// TypedNotification is the notification counterpart of Typed.
func TypedNotification[P any](fn func(ctx context.Context, params *P) error) NotificationHandler {
	return NotificationHandlerFunc(func(ctx context.Context, raw json.RawMessage) error {
		p := new(P)
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, p); err != nil {
				return mcp.WrapError(mcp.KindInvalidParams, err, "invalid params")
			}
		}
		return fn(ctx, p)
	})
}

// Registry maps method names to handlers. Requests and notifications live
// in separate maps with independent locks; registering a method again
// replaces the previous handler.
type Registry struct {
	reqMu    sync.RWMutex
	requests map[string]RequestHandler

	noteMu        sync.RWMutex
	notifications map[string]NotificationHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		requests:      make(map[string]RequestHandler),
		notifications: make(map[string]NotificationHandler),
	}
}

// Register binds a request handler to method.
func (r *Registry) Register(method string, h RequestHandler) {
	r.reqMu.Lock()
	defer r.reqMu.Unlock()
	r.requests[method] = h
}

// RegisterNotification binds a notification handler to method.
func (r *Registry) RegisterNotification(method string, h NotificationHandler) {
	r.noteMu.Lock()
	defer r.noteMu.Unlock()
	r.notifications[method] = h
}

// Lookup returns the request handler bound to method.
func (r *Registry) Lookup(method string) (RequestHandler, bool) {
	r.reqMu.RLock()
	defer r.reqMu.RUnlock()
	h, ok := r.requests[method]
	return h, ok
}

// LookupNotification returns the notification handler bound to method.
func (r *Registry) LookupNotification(method string) (NotificationHandler, bool) {
	r.noteMu.RLock()
	defer r.noteMu.RUnlock()
	h, ok := r.notifications[method]
	return h, ok
}

// Methods returns the registered request methods, sorted.
func (r *Registry) Methods() []string {
	r.reqMu.RLock()
	out := make([]string, 0, len(r.requests))
	for m := range r.requests {
		out = append(out, m)
	}
	r.reqMu.RUnlock()
	sort.Strings(out)
	return out
}
