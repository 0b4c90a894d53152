// Package stdio implements a single-connection MCP transport over
// stdin/stdout. It is intended for embedding servers as subprocesses, local
// development, and environments where spawning a child process and piping JSON
// is simpler than running an HTTP server.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Framing          : one JSON-RPC message per line
//	Concurrency      : lockstep request handling, notifications pumped
//	                   concurrently with whole-line writes
//
// Options allow supplying alternate io.Reader / io.Writer or a custom logger.
//
// Example:
//
//	srv, err := mcpservice.NewBuilder("my-stdio-server", "0.1.0").
//	    WithTools(false).
//	    AddTool(myTool).
//	    Build(ctx)
//	if err != nil { log.Fatal(err) }
//	if err := stdio.Serve(ctx, srv); err != nil { log.Fatal(err) }
//
// Transport can also be used directly as a client-side transport; see the
// client package.
package stdio
