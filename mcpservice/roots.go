package mcpservice

import (
	"context"
	"strings"
	"sync"

	"github.com/ggoodman/mcp-engine-go/internal/engine"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/notify"
)

// Roots holds the workspace roots served by roots/list.
type Roots struct {
	mu    sync.RWMutex
	roots []mcp.Root

	changes *notify.ChangeNotifier
}

// NewRoots creates an empty root set. Every mutation emits
// notifications/roots/list_changed into sink; a zero sink emits nothing.
func NewRoots(sink notify.Sink) *Roots {
	return &Roots{changes: notify.NewChangeNotifier(sink, mcp.RootsListChangedNotificationMethod)}
}

// AddRoot appends root. Only file:// URIs are accepted; anything else fails
// with InvalidRequest and leaves the set unchanged.
func (r *Roots) AddRoot(ctx context.Context, root mcp.Root) error {
	if !strings.HasPrefix(root.URI, "file://") {
		return mcp.NewError(mcp.KindInvalidRequest, "root URI must start with file://")
	}
	r.mu.Lock()
	r.roots = append(r.roots, root)
	r.mu.Unlock()
	return r.changes.Notify(ctx)
}

// seed validates and appends roots without emitting a change.
func (r *Roots) seed(roots []mcp.Root) error {
	for _, root := range roots {
		if !strings.HasPrefix(root.URI, "file://") {
			return mcp.NewError(mcp.KindInvalidRequest, "root URI must start with file://")
		}
	}
	r.mu.Lock()
	r.roots = append(r.roots, roots...)
	r.mu.Unlock()
	return nil
}

// RemoveRoot drops every root with the given URI.
func (r *Roots) RemoveRoot(ctx context.Context, uri string) error {
	r.mu.Lock()
	r.roots = compact(r.roots, func(root mcp.Root) bool { return root.URI != uri })
	r.mu.Unlock()
	return r.changes.Notify(ctx)
}

// ClearRoots drops all roots.
func (r *Roots) ClearRoots(ctx context.Context) error {
	r.mu.Lock()
	r.roots = nil
	r.mu.Unlock()
	return r.changes.Notify(ctx)
}

// List returns the roots in insertion order.
func (r *Roots) List() []mcp.Root {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]mcp.Root{}, r.roots...)
}

// Subscriber returns a channel signalled on every mutation.
func (r *Roots) Subscriber() <-chan struct{} { return r.changes.Subscriber() }

func (r *Roots) register(reg *engine.Registry) {
	reg.Register(string(mcp.RootsListMethod), engine.Typed(func(ctx context.Context, _ *mcp.ListRootsRequest) (*mcp.ListRootsResult, error) {
		return &mcp.ListRootsResult{Roots: r.List()}, nil
	}))
}
