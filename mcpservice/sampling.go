package mcpservice

import (
	"context"

	"github.com/ggoodman/mcp-engine-go/internal/engine"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/sampling"
)

func registerSampling(reg *engine.Registry, s sampling.Sampler) {
	reg.Register(string(mcp.SamplingCreateMessageMethod), engine.Typed(func(ctx context.Context, req *mcp.CreateMessageRequest) (*mcp.CreateMessageResult, error) {
		return sampling.Run(ctx, s, req)
	}))
}
