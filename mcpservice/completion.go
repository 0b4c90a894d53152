package mcpservice

import (
	"context"
	"strings"

	"github.com/ggoodman/mcp-engine-go/internal/engine"
	"github.com/ggoodman/mcp-engine-go/mcp"
)

// maxCompletionValues is the protocol cap on values in one completion.
const maxCompletionValues = 100

// Completer suggests values for a prompt or resource template argument.
type Completer interface {
	Complete(ctx context.Context, ref mcp.CompletionReference, arg mcp.CompleteArgument) (mcp.Completion, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, ref mcp.CompletionReference, arg mcp.CompleteArgument) (mcp.Completion, error)

func (f CompleterFunc) Complete(ctx context.Context, ref mcp.CompletionReference, arg mcp.CompleteArgument) (mcp.Completion, error) {
	return f(ctx, ref, arg)
}

// PrefixCompleter completes from a fixed candidate list by prefix.
func PrefixCompleter(candidates ...string) Completer {
	return CompleterFunc(func(_ context.Context, _ mcp.CompletionReference, arg mcp.CompleteArgument) (mcp.Completion, error) {
		var out []string
		for _, c := range candidates {
			if strings.HasPrefix(c, arg.Value) {
				out = append(out, c)
			}
		}
		return mcp.Completion{Values: out}, nil
	})
}

func registerCompletion(reg *engine.Registry, c Completer) {
	reg.Register(string(mcp.CompletionCompleteMethod), engine.Typed(func(ctx context.Context, req *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
		switch req.Ref.Type {
		case mcp.RefTypePrompt, mcp.RefTypeResource:
		default:
			return nil, mcp.NewError(mcp.KindInvalidParams, "unsupported reference type: %q", req.Ref.Type)
		}
		if c == nil {
			return &mcp.CompleteResult{Completion: mcp.Completion{Values: []string{}}}, nil
		}
		comp, err := c.Complete(ctx, req.Ref, req.Argument)
		if err != nil {
			return nil, err
		}
		if comp.Values == nil {
			comp.Values = []string{}
		}
		if len(comp.Values) > maxCompletionValues {
			if comp.Total == 0 {
				comp.Total = len(comp.Values)
			}
			comp.Values = comp.Values[:maxCompletionValues]
			comp.HasMore = true
		}
		return &mcp.CompleteResult{Completion: comp}, nil
	}))
}
