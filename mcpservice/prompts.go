package mcpservice

import (
	"context"
	"sync"

	"github.com/ggoodman/mcp-engine-go/internal/engine"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/notify"
)

// PromptProvider is a prompt the server can list and render.
type PromptProvider interface {
	Prompt() mcp.Prompt
	Get(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error)
}

// PromptFunc renders a prompt from its arguments.
type PromptFunc func(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error)

// StaticPrompt pairs a prompt descriptor with its renderer. A nil Handler
// renders Messages as-is.
type StaticPrompt struct {
	Descriptor mcp.Prompt
	Messages   []mcp.PromptMessage
	Handler    PromptFunc
}

var _ PromptProvider = (*StaticPrompt)(nil)

func (p *StaticPrompt) Prompt() mcp.Prompt { return p.Descriptor }

func (p *StaticPrompt) Get(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	for _, a := range p.Descriptor.Arguments {
		if _, ok := args[a.Name]; a.Required && !ok {
			return nil, mcp.NewError(mcp.KindInvalidParams, "missing required argument: %s", a.Name)
		}
	}
	if p.Handler != nil {
		return p.Handler(ctx, args)
	}
	return &mcp.GetPromptResult{
		Description: p.Descriptor.Description,
		Messages:    append([]mcp.PromptMessage{}, p.Messages...),
	}, nil
}

// Prompts is the prompts registry serving prompts/list and prompts/get.
type Prompts struct {
	mu       sync.RWMutex
	order    []string
	byName   map[string]PromptProvider
	pageSize int

	changes *notify.ChangeNotifier
}

// NewPrompts creates an empty registry. When listChanged is set each
// mutation emits notifications/prompts/list_changed into sink.
func NewPrompts(sink notify.Sink, listChanged bool) *Prompts {
	if !listChanged {
		sink = notify.Sink{}
	}
	return &Prompts{
		byName:  make(map[string]PromptProvider),
		changes: notify.NewChangeNotifier(sink, mcp.PromptsListChangedNotificationMethod),
	}
}

// SetPageSize enables cursor pagination of prompts/list.
func (p *Prompts) SetPageSize(n int) {
	p.mu.Lock()
	p.pageSize = n
	p.mu.Unlock()
}

// Register adds providers, replacing same-named prompts in place.
func (p *Prompts) Register(ctx context.Context, providers ...PromptProvider) error {
	if len(providers) == 0 {
		return nil
	}
	p.mu.Lock()
	for _, pp := range providers {
		name := pp.Prompt().Name
		if _, exists := p.byName[name]; !exists {
			p.order = append(p.order, name)
		}
		p.byName[name] = pp
	}
	p.mu.Unlock()
	return p.changes.Notify(ctx)
}

// Remove drops the named prompts and reports whether any was present.
func (p *Prompts) Remove(ctx context.Context, names ...string) (bool, error) {
	p.mu.Lock()
	removed := false
	for _, name := range names {
		if _, ok := p.byName[name]; ok {
			delete(p.byName, name)
			removed = true
		}
	}
	if removed {
		p.order = compact(p.order, func(n string) bool { _, ok := p.byName[n]; return ok })
	}
	p.mu.Unlock()
	if !removed {
		return false, nil
	}
	return true, p.changes.Notify(ctx)
}

// List returns prompt descriptors in registration order.
func (p *Prompts) List() []mcp.Prompt {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]mcp.Prompt, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.byName[name].Prompt())
	}
	return out
}

// Get renders the named prompt. Unknown names fail with InvalidRequest.
func (p *Prompts) Get(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	p.mu.RLock()
	pp, ok := p.byName[req.Name]
	p.mu.RUnlock()
	if !ok {
		return nil, mcp.NewError(mcp.KindInvalidRequest, "prompt not found: %s", req.Name)
	}
	res, err := pp.Get(ctx, req.Arguments)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, mcp.NewError(mcp.KindInternal, "prompt %s returned no result", req.Name)
	}
	if res.Messages == nil {
		res.Messages = []mcp.PromptMessage{}
	}
	return res, nil
}

// Subscriber returns a channel signalled on every change of the prompt set.
func (p *Prompts) Subscriber() <-chan struct{} { return p.changes.Subscriber() }

func (p *Prompts) register(reg *engine.Registry) {
	reg.Register(string(mcp.PromptsListMethod), engine.Typed(func(ctx context.Context, req *mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error) {
		p.mu.RLock()
		size := p.pageSize
		p.mu.RUnlock()
		items, next, err := paginate(p.List(), size, req.Cursor)
		if err != nil {
			return nil, err
		}
		return &mcp.ListPromptsResult{Prompts: items, PaginatedResult: mcp.PaginatedResult{NextCursor: next}}, nil
	}))
	reg.Register(string(mcp.PromptsGetMethod), engine.Typed(p.Get))
}
