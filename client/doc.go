// Package client is the requesting side of an MCP connection.
//
// A Client assigns increasing request IDs, sends each request over a
// transport.Transport and routes the reply that carries the same ID back to
// the waiting caller, so any number of calls may be in flight at once.
// Until Initialize succeeds every call except initialize itself fails
// locally with a Protocol error and nothing is written to the wire.
//
//	tr := stdio.New(stdio.WithIO(serverStdout, serverStdin))
//	c := client.New(tr, mcp.ImplementationInfo{Name: "host", Version: "1.0.0"})
//	defer c.Close()
//
//	if _, err := c.Initialize(ctx); err != nil {
//		return err
//	}
//	tools, err := c.ListTools(ctx, "")
//
// Requests the server sends to the client are answered on their own
// goroutine: ping always, roots/list when roots were configured with
// WithRoots, and sampling/createMessage when a sampler was configured with
// WithSampler.
package client
