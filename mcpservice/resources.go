package mcpservice

import (
	"context"
	"sync"

	"github.com/ggoodman/mcp-engine-go/internal/engine"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/notify"
)

// ResourceProvider is a resource the server can list and read.
type ResourceProvider interface {
	Resource() mcp.Resource
	Read(ctx context.Context) ([]mcp.ResourceContents, error)
}

// StaticResource is a ResourceProvider with fixed contents.
type StaticResource struct {
	Descriptor mcp.Resource
	Contents   []mcp.ResourceContents
}

var _ ResourceProvider = (*StaticResource)(nil)

// TextResource builds a StaticResource holding a single text body.
func TextResource(uri, name, mimeType, text string) *StaticResource {
	return &StaticResource{
		Descriptor: mcp.Resource{URI: uri, Name: name, MimeType: mimeType},
		Contents:   []mcp.ResourceContents{{URI: uri, MimeType: mimeType, Text: text}},
	}
}

func (r *StaticResource) Resource() mcp.Resource { return r.Descriptor }

func (r *StaticResource) Read(context.Context) ([]mcp.ResourceContents, error) {
	return append([]mcp.ResourceContents(nil), r.Contents...), nil
}

// Resources is the resources registry. It serves resources/list,
// resources/templates/list and resources/read, and tracks the set of URIs
// the client subscribed to.
type Resources struct {
	caps mcp.ResourcesCapability
	sink notify.Sink

	mu        sync.RWMutex
	order     []string
	byURI     map[string]ResourceProvider
	templates []mcp.ResourceTemplate
	pageSize  int

	subMu sync.RWMutex
	subs  map[string]struct{}

	changes *notify.ChangeNotifier
}

// NewResources creates an empty registry. caps decides whether list changes
// and subscribed updates are emitted into sink.
func NewResources(sink notify.Sink, caps mcp.ResourcesCapability) *Resources {
	changeSink := sink
	if !caps.ListChanged {
		changeSink = notify.Sink{}
	}
	return &Resources{
		caps:    caps,
		sink:    sink,
		byURI:   make(map[string]ResourceProvider),
		subs:    make(map[string]struct{}),
		changes: notify.NewChangeNotifier(changeSink, mcp.ResourcesListChangedNotificationMethod),
	}
}

// SetPageSize enables cursor pagination of the list methods.
func (r *Resources) SetPageSize(n int) {
	r.mu.Lock()
	r.pageSize = n
	r.mu.Unlock()
}

// Register adds providers, replacing existing ones with the same URI in
// place. One change notification is emitted per call.
func (r *Resources) Register(ctx context.Context, providers ...ResourceProvider) error {
	if len(providers) == 0 {
		return nil
	}
	r.mu.Lock()
	for _, p := range providers {
		uri := p.Resource().URI
		if _, exists := r.byURI[uri]; !exists {
			r.order = append(r.order, uri)
		}
		r.byURI[uri] = p
	}
	r.mu.Unlock()
	return r.changes.Notify(ctx)
}

// RegisterTemplate adds resource templates, replacing by URI template.
func (r *Resources) RegisterTemplate(ctx context.Context, templates ...mcp.ResourceTemplate) error {
	if len(templates) == 0 {
		return nil
	}
	r.mu.Lock()
	for _, tpl := range templates {
		replaced := false
		for i := range r.templates {
			if r.templates[i].URITemplate == tpl.URITemplate {
				r.templates[i] = tpl
				replaced = true
				break
			}
		}
		if !replaced {
			r.templates = append(r.templates, tpl)
		}
	}
	r.mu.Unlock()
	return r.changes.Notify(ctx)
}

// Remove drops the resources with the given URIs and reports whether any
// was present.
func (r *Resources) Remove(ctx context.Context, uris ...string) (bool, error) {
	r.mu.Lock()
	removed := false
	for _, uri := range uris {
		if _, ok := r.byURI[uri]; ok {
			delete(r.byURI, uri)
			removed = true
		}
	}
	if removed {
		r.order = compact(r.order, func(u string) bool { _, ok := r.byURI[u]; return ok })
	}
	r.mu.Unlock()
	if !removed {
		return false, nil
	}
	return true, r.changes.Notify(ctx)
}

// List returns every resource descriptor in registration order.
func (r *Resources) List() []mcp.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Resource, 0, len(r.order))
	for _, uri := range r.order {
		out = append(out, r.byURI[uri].Resource())
	}
	return out
}

// Templates returns the registered resource templates.
func (r *Resources) Templates() []mcp.ResourceTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]mcp.ResourceTemplate{}, r.templates...)
}

// Has reports whether uri is registered.
func (r *Resources) Has(uri string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byURI[uri]
	return ok
}

// Read returns the contents of uri. Unknown URIs fail with InvalidRequest.
func (r *Resources) Read(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	r.mu.RLock()
	p, ok := r.byURI[uri]
	r.mu.RUnlock()
	if !ok {
		return nil, mcp.NewError(mcp.KindInvalidRequest, "resource not found: %s", uri)
	}
	contents, err := p.Read(ctx)
	if err != nil {
		return nil, err
	}
	if contents == nil {
		contents = []mcp.ResourceContents{}
	}
	return contents, nil
}

// Subscribe records interest in updates for uri. Subscribing twice is a
// no-op.
func (r *Resources) Subscribe(uri string) error {
	if !r.caps.Subscribe {
		return mcp.NewError(mcp.KindInvalidRequest, "resource subscriptions are not supported")
	}
	if uri == "" {
		return mcp.NewError(mcp.KindInvalidParams, "missing uri")
	}
	r.subMu.Lock()
	r.subs[uri] = struct{}{}
	r.subMu.Unlock()
	return nil
}

// Unsubscribe removes interest in uri. Unknown URIs are ignored.
func (r *Resources) Unsubscribe(uri string) error {
	if !r.caps.Subscribe {
		return mcp.NewError(mcp.KindInvalidRequest, "resource subscriptions are not supported")
	}
	r.subMu.Lock()
	delete(r.subs, uri)
	r.subMu.Unlock()
	return nil
}

// Subscribed reports whether the client subscribed to uri.
func (r *Resources) Subscribed(uri string) bool {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	_, ok := r.subs[uri]
	return ok
}

// NotifyUpdated emits notifications/resources/updated for uri when the
// client subscribed to it.
func (r *Resources) NotifyUpdated(ctx context.Context, uri string) error {
	if !r.Subscribed(uri) {
		return nil
	}
	return r.sink.Notify(ctx, mcp.ResourcesUpdatedNotificationMethod, &mcp.ResourceUpdatedNotification{URI: uri})
}

// Subscriber returns a channel signalled on every change of the resource set.
func (r *Resources) Subscriber() <-chan struct{} { return r.changes.Subscriber() }

func (r *Resources) register(reg *engine.Registry) {
	reg.Register(string(mcp.ResourcesListMethod), engine.Typed(func(ctx context.Context, req *mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
		items, next, err := paginate(r.List(), r.size(), req.Cursor)
		if err != nil {
			return nil, err
		}
		return &mcp.ListResourcesResult{Resources: items, PaginatedResult: mcp.PaginatedResult{NextCursor: next}}, nil
	}))
	reg.Register(string(mcp.ResourcesTemplatesListMethod), engine.Typed(func(ctx context.Context, req *mcp.ListResourceTemplatesRequest) (*mcp.ListResourceTemplatesResult, error) {
		items, next, err := paginate(r.Templates(), r.size(), req.Cursor)
		if err != nil {
			return nil, err
		}
		return &mcp.ListResourceTemplatesResult{ResourceTemplates: items, PaginatedResult: mcp.PaginatedResult{NextCursor: next}}, nil
	}))
	reg.Register(string(mcp.ResourcesReadMethod), engine.Typed(func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		contents, err := r.Read(ctx, req.URI)
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{Contents: contents}, nil
	}))
	reg.Register(string(mcp.ResourcesSubscribeMethod), engine.Typed(func(ctx context.Context, req *mcp.SubscribeRequest) (*mcp.EmptyResult, error) {
		if err := r.Subscribe(req.URI); err != nil {
			return nil, err
		}
		return &mcp.EmptyResult{}, nil
	}))
	reg.Register(string(mcp.ResourcesUnsubscribeMethod), engine.Typed(func(ctx context.Context, req *mcp.UnsubscribeRequest) (*mcp.EmptyResult, error) {
		if err := r.Unsubscribe(req.URI); err != nil {
			return nil, err
		}
		return &mcp.EmptyResult{}, nil
	}))
}

func (r *Resources) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pageSize
}
