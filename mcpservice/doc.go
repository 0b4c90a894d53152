// Package mcpservice builds MCP servers on top of the protocol engine. A
// Server wires default handlers for each advertised capability and exposes
// registries (Tools, Resources, Prompts, Roots) that can be mutated while
// serving; mutations emit list_changed notifications when the capability
// advertises them.
//
// Quick start:
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema:"description=Text to echo"`
//	}
//
//	srv, err := mcpservice.NewBuilder("example", "1.0.0").
//	    WithTools(true).
//	    WithLogging().
//	    AddTool(mcpservice.NewTool("echo", func(ctx context.Context, a EchoArgs) (*mcp.CallToolResult, error) {
//	        return mcpservice.TextResult("you said: " + a.Message), nil
//	    }, mcpservice.WithToolDescription("Echo a message back to the caller"))).
//	    Build(ctx)
//	if err != nil { return err }
//	return stdio.Serve(ctx, srv)
//
// The server does no I/O. Transports call Handle for each inbound message
// and forward Notifications to the peer.
package mcpservice
