package mcpservice

import (
	"context"

	"github.com/ggoodman/mcp-engine-go/mcp"
)

// Builder assembles a Server fluently: capabilities first, then the items
// each capability serves.
type Builder struct {
	info mcp.ImplementationInfo
	caps mcp.ServerCapabilities
	opts []ServerOption

	tools     []ToolProvider
	resources []ResourceProvider
	templates []mcp.ResourceTemplate
	prompts   []PromptProvider
	roots     []mcp.Root
}

// NewBuilder starts a server description for the given implementation.
func NewBuilder(name, version string) *Builder {
	return &Builder{info: mcp.ImplementationInfo{Name: name, Version: version}}
}

// WithTitle sets the human-readable implementation title.
func (b *Builder) WithTitle(title string) *Builder {
	b.info.Title = title
	return b
}

// WithResources advertises the resources capability.
func (b *Builder) WithResources(subscribe, listChanged bool) *Builder {
	b.caps.Resources = &mcp.ResourcesCapability{Subscribe: subscribe, ListChanged: listChanged}
	return b
}

// WithTools advertises the tools capability.
func (b *Builder) WithTools(listChanged bool) *Builder {
	b.caps.Tools = &mcp.ToolsCapability{ListChanged: listChanged}
	return b
}

// WithPrompts advertises the prompts capability.
func (b *Builder) WithPrompts(listChanged bool) *Builder {
	b.caps.Prompts = &mcp.PromptsCapability{ListChanged: listChanged}
	return b
}

// WithLogging advertises the logging capability.
func (b *Builder) WithLogging() *Builder {
	b.caps.Logging = &mcp.LoggingCapability{}
	return b
}

// WithCompletions advertises the completions capability.
func (b *Builder) WithCompletions() *Builder {
	b.caps.Completions = &mcp.CompletionsCapability{}
	return b
}

// WithRoots advertises the experimental roots capability.
func (b *Builder) WithRoots(listChanged bool) *Builder {
	return b.WithExperimental(mcp.ExperimentalRoots, map[string]any{"list_changed": listChanged})
}

// WithExperimental sets one experimental capability entry.
func (b *Builder) WithExperimental(key string, value any) *Builder {
	if b.caps.Experimental == nil {
		b.caps.Experimental = make(map[string]any)
	}
	b.caps.Experimental[key] = value
	return b
}

// WithOptions appends server options applied at Build.
func (b *Builder) WithOptions(opts ...ServerOption) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

// AddTool queues tools for registration.
func (b *Builder) AddTool(tools ...ToolProvider) *Builder {
	b.tools = append(b.tools, tools...)
	return b
}

// AddResource queues resources for registration.
func (b *Builder) AddResource(resources ...ResourceProvider) *Builder {
	b.resources = append(b.resources, resources...)
	return b
}

// AddResourceTemplate queues resource templates for registration.
func (b *Builder) AddResourceTemplate(templates ...mcp.ResourceTemplate) *Builder {
	b.templates = append(b.templates, templates...)
	return b
}

// AddPrompt queues prompts for registration.
func (b *Builder) AddPrompt(prompts ...PromptProvider) *Builder {
	b.prompts = append(b.prompts, prompts...)
	return b
}

// AddRoot queues roots for registration.
func (b *Builder) AddRoot(roots ...mcp.Root) *Builder {
	b.roots = append(b.roots, roots...)
	return b
}

// Build creates the server and registers the queued items. It fails with
// InvalidRequest when items were added for a capability that is not
// advertised, or with the registry's error for an invalid item.
func (b *Builder) Build(ctx context.Context) (*Server, error) {
	if (len(b.resources) > 0 || len(b.templates) > 0) && b.caps.Resources == nil {
		return nil, mcp.NewError(mcp.KindInvalidRequest, "resources support not enabled")
	}
	if len(b.tools) > 0 && b.caps.Tools == nil {
		return nil, mcp.NewError(mcp.KindInvalidRequest, "tools support not enabled")
	}
	if len(b.prompts) > 0 && b.caps.Prompts == nil {
		return nil, mcp.NewError(mcp.KindInvalidRequest, "prompts support not enabled")
	}
	if present, _ := b.caps.Roots(); len(b.roots) > 0 && !present {
		return nil, mcp.NewError(mcp.KindInvalidRequest, "roots support not enabled")
	}

	s := New(b.caps, b.info, b.opts...)
	if s.tools != nil {
		if err := s.tools.Register(ctx, b.tools...); err != nil {
			return nil, err
		}
	}
	if s.resources != nil {
		if err := s.resources.Register(ctx, b.resources...); err != nil {
			return nil, err
		}
		if err := s.resources.RegisterTemplate(ctx, b.templates...); err != nil {
			return nil, err
		}
	}
	if s.prompts != nil {
		if err := s.prompts.Register(ctx, b.prompts...); err != nil {
			return nil, err
		}
	}
	if s.roots != nil {
		if err := s.roots.seed(b.roots); err != nil {
			return nil, err
		}
	}

	// The initial item set is part of the advertised state, not a change.
	for {
		select {
		case <-s.out:
		default:
			return s, nil
		}
	}
}
