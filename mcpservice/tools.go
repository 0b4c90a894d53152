package mcpservice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ggoodman/mcp-engine-go/internal/engine"
	"github.com/ggoodman/mcp-engine-go/internal/logctx"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/notify"
)

// ToolProvider is a tool the server can list and invoke.
type ToolProvider interface {
	Name() string
	Description() string
	InputSchema() mcp.ToolInputSchema
	// Execute runs the tool. Returned errors are converted into wire errors;
	// tool-level failures that the model should see belong in a result with
	// IsError set.
	Execute(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)
}

// Tools is the tools registry: an ordered, threadsafe set of providers
// serving tools/list and tools/call.
type Tools struct {
	mu       sync.RWMutex
	order    []string
	byName   map[string]ToolProvider
	pageSize int

	changes *notify.ChangeNotifier
}

// NewTools creates an empty tools registry. When listChanged is set each
// mutation emits notifications/tools/list_changed into sink.
func NewTools(sink notify.Sink, listChanged bool) *Tools {
	if !listChanged {
		sink = notify.Sink{}
	}
	return &Tools{
		byName:  make(map[string]ToolProvider),
		changes: notify.NewChangeNotifier(sink, mcp.ToolsListChangedNotificationMethod),
	}
}

// SetPageSize enables cursor pagination of tools/list. A non-positive value
// lists everything in one page.
func (t *Tools) SetPageSize(n int) {
	t.mu.Lock()
	t.pageSize = n
	t.mu.Unlock()
}

// Register adds providers, replacing any existing tool with the same name in
// place. One change notification is emitted per call.
func (t *Tools) Register(ctx context.Context, providers ...ToolProvider) error {
	if len(providers) == 0 {
		return nil
	}
	t.mu.Lock()
	for _, p := range providers {
		name := p.Name()
		if _, exists := t.byName[name]; !exists {
			t.order = append(t.order, name)
		}
		t.byName[name] = p
	}
	t.mu.Unlock()
	return t.changes.Notify(ctx)
}

// Remove drops the named tools and reports whether any was present.
func (t *Tools) Remove(ctx context.Context, names ...string) (bool, error) {
	t.mu.Lock()
	removed := false
	for _, name := range names {
		if _, ok := t.byName[name]; !ok {
			continue
		}
		delete(t.byName, name)
		removed = true
	}
	if removed {
		t.order = compact(t.order, func(n string) bool { _, ok := t.byName[n]; return ok })
	}
	t.mu.Unlock()
	if !removed {
		return false, nil
	}
	return true, t.changes.Notify(ctx)
}

// List returns every tool descriptor in registration order.
func (t *Tools) List() []mcp.Tool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]mcp.Tool, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, describeTool(t.byName[name]))
	}
	return out
}

// Get returns the named provider.
func (t *Tools) Get(name string) (ToolProvider, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byName[name]
	return p, ok
}

// Call looks up the named tool and executes it. The registry lock is not
// held while the tool runs.
func (t *Tools) Call(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, mcp.NewError(mcp.KindInvalidParams, "missing tool name")
	}
	p, ok := t.Get(req.Name)
	if !ok {
		return nil, mcp.NewError(mcp.KindInvalidRequest, "tool not found: %s", req.Name)
	}
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: req.Name})
	res, err := p.Execute(ctx, req.Arguments)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, mcp.NewError(mcp.KindInternal, "tool %s returned no result", req.Name)
	}
	if res.Content == nil {
		res.Content = []mcp.ContentBlock{}
	}
	return res, nil
}

// Subscriber returns a channel signalled on every change of the tool set.
func (t *Tools) Subscriber() <-chan struct{} { return t.changes.Subscriber() }

func (t *Tools) register(reg *engine.Registry) {
	reg.Register(string(mcp.ToolsListMethod), engine.Typed(func(ctx context.Context, req *mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
		t.mu.RLock()
		size := t.pageSize
		t.mu.RUnlock()
		items, next, err := paginate(t.List(), size, req.Cursor)
		if err != nil {
			return nil, err
		}
		return &mcp.ListToolsResult{Tools: items, PaginatedResult: mcp.PaginatedResult{NextCursor: next}}, nil
	}))
	reg.Register(string(mcp.ToolsCallMethod), engine.Typed(t.Call))
}

func describeTool(p ToolProvider) mcp.Tool {
	return mcp.Tool{
		Name:        p.Name(),
		Description: p.Description(),
		InputSchema: p.InputSchema(),
	}
}

// ToolFunc handles a tool invocation with raw arguments.
type ToolFunc func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)

// StaticTool pairs an MCP tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolFunc
}

var _ ToolProvider = (*StaticTool)(nil)

func (st *StaticTool) Name() string                     { return st.Descriptor.Name }
func (st *StaticTool) Description() string              { return st.Descriptor.Description }
func (st *StaticTool) InputSchema() mcp.ToolInputSchema { return st.Descriptor.InputSchema }

func (st *StaticTool) Execute(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	if st.Handler == nil {
		return nil, mcp.NewError(mcp.KindInternal, "tool %s has no handler", st.Descriptor.Name)
	}
	return st.Handler(ctx, args)
}

// TextResult is a small helper to build a text CallToolResult.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.TextContent(s)}}
}

// Errorf returns an error CallToolResult with a single text block and IsError=true.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.TextContent(fmt.Sprintf(format, a...))}, IsError: true}
}
