package client

import (
	"context"
	"encoding/json"

	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
)

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, mcp.PingMethod, nil, nil)
}

func (c *Client) ListResources(ctx context.Context, cursor string) (*mcp.ListResourcesResult, error) {
	var res mcp.ListResourcesResult
	params := &mcp.ListResourcesRequest{PaginatedRequest: mcp.PaginatedRequest{Cursor: cursor}}
	if err := c.Call(ctx, mcp.ResourcesListMethod, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ListResourceTemplates(ctx context.Context, cursor string) (*mcp.ListResourceTemplatesResult, error) {
	var res mcp.ListResourceTemplatesResult
	params := &mcp.ListResourceTemplatesRequest{PaginatedRequest: mcp.PaginatedRequest{Cursor: cursor}}
	if err := c.Call(ctx, mcp.ResourcesTemplatesListMethod, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	var res mcp.ReadResourceResult
	if err := c.Call(ctx, mcp.ResourcesReadMethod, &mcp.ReadResourceRequest{URI: uri}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Subscribe asks the server for notifications/resources/updated on uri.
func (c *Client) Subscribe(ctx context.Context, uri string) error {
	return c.Call(ctx, mcp.ResourcesSubscribeMethod, &mcp.SubscribeRequest{URI: uri}, nil)
}

func (c *Client) Unsubscribe(ctx context.Context, uri string) error {
	return c.Call(ctx, mcp.ResourcesUnsubscribeMethod, &mcp.UnsubscribeRequest{URI: uri}, nil)
}

func (c *Client) ListPrompts(ctx context.Context, cursor string) (*mcp.ListPromptsResult, error) {
	var res mcp.ListPromptsResult
	params := &mcp.ListPromptsRequest{PaginatedRequest: mcp.PaginatedRequest{Cursor: cursor}}
	if err := c.Call(ctx, mcp.PromptsListMethod, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	var res mcp.GetPromptResult
	if err := c.Call(ctx, mcp.PromptsGetMethod, &mcp.GetPromptRequest{Name: name, Arguments: args}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ListTools(ctx context.Context, cursor string) (*mcp.ListToolsResult, error) {
	var res mcp.ListToolsResult
	params := &mcp.ListToolsRequest{PaginatedRequest: mcp.PaginatedRequest{Cursor: cursor}}
	if err := c.Call(ctx, mcp.ToolsListMethod, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CallTool invokes the named tool. args is marshaled to JSON; nil sends no
// arguments.
func (c *Client) CallTool(ctx context.Context, name string, args any) (*mcp.CallToolResult, error) {
	req := &mcp.CallToolRequest{Name: name}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, mcp.WrapError(mcp.KindSerialization, err, "encode arguments for tool %q", name)
		}
		req.Arguments = raw
	}
	var res mcp.CallToolResult
	if err := c.Call(ctx, mcp.ToolsCallMethod, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SetLoggingLevel sets the minimum level of notifications/message the
// server sends to this client.
func (c *Client) SetLoggingLevel(ctx context.Context, level mcp.LoggingLevel) error {
	return c.Call(ctx, mcp.LoggingSetLevelMethod, &mcp.SetLevelRequest{Level: level}, nil)
}

func (c *Client) Complete(ctx context.Context, req *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
	var res mcp.CompleteResult
	if err := c.Call(ctx, mcp.CompletionCompleteMethod, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Cancel tells the server that the request with id is no longer wanted.
// The server treats it as advisory.
func (c *Client) Cancel(ctx context.Context, id jsonrpc.RequestID, reason string) error {
	return c.Notify(ctx, mcp.CancelledNotificationMethod, &mcp.CancelledNotification{RequestID: id, Reason: reason})
}

// SetRoots replaces the roots served to roots/list and, once initialized,
// tells the server the list changed.
func (c *Client) SetRoots(ctx context.Context, roots ...mcp.Root) error {
	c.rootsMu.Lock()
	c.rootsConfig = true
	c.roots = append([]mcp.Root(nil), roots...)
	c.rootsMu.Unlock()
	if !c.Initialized() {
		return nil
	}
	return c.SendRootsListChanged(ctx)
}

func (c *Client) SendRootsListChanged(ctx context.Context) error {
	return c.Notify(ctx, mcp.RootsListChangedNotificationMethod, nil)
}
