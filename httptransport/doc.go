// Package httptransport carries MCP messages over plain HTTP POST.
//
// The client side, Transport, is send-only: every message is POSTed to a
// fixed endpoint and a non-2xx status fails the send. It suits
// fire-and-forget delivery from a client to a server; Receive is not
// supported.
//
// The server side, NewHandler, accepts one JSON-RPC message per POST body.
// Requests are answered in the response body; notifications and responses
// are acknowledged with 202 Accepted and no body.
package httptransport
