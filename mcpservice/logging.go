package mcpservice

import (
	"context"

	"github.com/ggoodman/mcp-engine-go/internal/engine"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/notify"
)

func registerLogging(reg *engine.Registry, l *notify.Logger) {
	reg.Register(string(mcp.LoggingSetLevelMethod), engine.Typed(func(ctx context.Context, req *mcp.SetLevelRequest) (*mcp.EmptyResult, error) {
		if err := l.SetLevel(req.Level); err != nil {
			return nil, err
		}
		return &mcp.EmptyResult{}, nil
	}))
}
