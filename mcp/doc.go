// Package mcp contains protocol data types and constants shared across
// transports, the engine and the client. It mirrors the wire representation
// specified by the Model Context Protocol while keeping the surface
// Go-friendly (exported structs with json tags, string constants for method
// names and enumerations, helper validation functions).
//
// The package is free of transport logic: stdio, HTTP and websocket
// transports import these types but implement their own framing.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod). Methods, RequestMethods and NotificationMethods
// return the closed vocabulary.
//
// # Payload Unions
//
// Each method maps to exactly one params shape and, for requests, exactly
// one result shape. NewParams, NewResult, DecodeParams and DecodeResult
// dispatch on the method name; a method outside the vocabulary yields
// ErrUnknownMethod.
//
// # Errors
//
// Error carries an ErrorKind that maps onto the JSON-RPC error code space
// (ErrorKind.Code). NotInitialized and AlreadyInitialized surface on the wire
// as Invalid Request. Use errors.Is with the Err* sentinels to match a kind:
//
//	if errors.Is(err, mcp.ErrMethodNotFound) { ... }
//
// # Capabilities
//
// ClientCapabilities and ServerCapabilities capture negotiated feature sets.
// A nil capability pointer means the feature is absent. The server's own
// roots list is advertised under Experimental["roots"], optionally with a
// "list_changed" flag.
//
// # Logging Levels
//
// LoggingLevel values mirror syslog severities. Severity orders them from
// emergency (0) to debug (7); Passes implements threshold filtering.
//
// # Compatibility
//
// LatestProtocolVersion is the only protocol version accepted during the
// initialize handshake.
package mcp
