package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ggoodman/mcp-engine-go/mcp"
)

// ToolOption configures a tool built by NewTool.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description string
	lenient     bool
}

// WithToolDescription sets the description shown in tools/list.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties lets arguments carry fields the
// argument struct does not declare. By default they are rejected, and the
// advertised schema says so.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.lenient = allow }
}

// NewTool constructs a tool whose input schema is reflected from A. Arguments
// are decoded into A before fn runs; arguments that do not match A fail with
// InvalidParams.
func NewTool[A any](name string, fn func(ctx context.Context, args A) (*mcp.CallToolResult, error), opts ...ToolOption) *StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	handler := func(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, error) {
		var a A
		if len(raw) > 0 && string(raw) != "null" {
			dec := json.NewDecoder(bytes.NewReader(raw))
			if !cfg.lenient {
				dec.DisallowUnknownFields()
			}
			if err := dec.Decode(&a); err != nil {
				return nil, mcp.WrapError(mcp.KindInvalidParams, err, "invalid arguments for %s", name)
			}
		}
		return fn(ctx, a)
	}

	return &StaticTool{
		Descriptor: mcp.Tool{
			Name:        name,
			Description: cfg.description,
			InputSchema: reflectInputSchema[A](cfg.lenient),
		},
		Handler: handler,
	}
}

// reflectInputSchema flattens the invopop/jsonschema reflection of A into
// an mcp.ToolInputSchema. Anything but a struct yields an empty object.
func reflectInputSchema[A any](lenient bool) mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: lenient,
	}
	in := mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           map[string]mcp.SchemaProperty{},
		AdditionalProperties: lenient,
	}
	s := r.Reflect(new(A))
	if s == nil || s.Type != "object" {
		return in
	}
	in.Properties = schemaProperties(s.Properties)
	in.Required = append([]string(nil), s.Required...)
	return in
}

func schemaProperties(om *orderedmap.OrderedMap[string, *jsonschema.Schema]) map[string]mcp.SchemaProperty {
	out := map[string]mcp.SchemaProperty{}
	if om == nil {
		return out
	}
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = toSchemaProperty(pair.Value)
	}
	return out
}

func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{Type: s.Type, Description: s.Description, Enum: s.Enum}
	switch s.Type {
	case "array":
		if s.Items != nil {
			item := toSchemaProperty(s.Items)
			p.Items = &item
		}
	case "object":
		if s.Properties != nil {
			p.Properties = schemaProperties(s.Properties)
		}
	}
	return p
}
