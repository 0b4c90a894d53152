package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ggoodman/mcp-engine-go/jsonrpc"
)

// ErrorKind classifies protocol engine failures.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotInitialized
	KindAlreadyInitialized
	KindInvalidRequest
	KindMethodNotFound
	KindInvalidParams
	KindSerialization
	KindTransport
	// KindProtocol is raised by the client when the peer misbehaves or
	// answers with an error.
	KindProtocol
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotInitialized:
		return "not initialized"
	case KindAlreadyInitialized:
		return "already initialized"
	case KindInvalidRequest:
		return "invalid request"
	case KindMethodNotFound:
		return "method not found"
	case KindInvalidParams:
		return "invalid params"
	case KindSerialization:
		return "serialization error"
	case KindTransport:
		return "transport error"
	case KindProtocol:
		return "protocol error"
	default:
		return "internal error"
	}
}

// Code maps the kind onto the JSON-RPC error code space.
func (k ErrorKind) Code() jsonrpc.ErrorCode {
	switch k {
	case KindNotInitialized, KindAlreadyInitialized, KindInvalidRequest:
		return jsonrpc.ErrorCodeInvalidRequest
	case KindMethodNotFound:
		return jsonrpc.ErrorCodeMethodNotFound
	case KindInvalidParams:
		return jsonrpc.ErrorCodeInvalidParams
	case KindSerialization:
		return jsonrpc.ErrorCodeParseError
	default:
		return jsonrpc.ErrorCodeInternalError
	}
}

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrNotInitialized     = &Error{Kind: KindNotInitialized}
	ErrAlreadyInitialized = &Error{Kind: KindAlreadyInitialized}
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest}
	ErrMethodNotFound     = &Error{Kind: KindMethodNotFound}
	ErrInvalidParams      = &Error{Kind: KindInvalidParams}
	ErrInternal           = &Error{Kind: KindInternal}
	ErrSerialization      = &Error{Kind: KindSerialization}
	ErrTransport          = &Error{Kind: KindTransport}
	ErrProtocol           = &Error{Kind: KindProtocol}
)

// Error is a classified engine error. Detail is the human-readable message
// placed on the wire.
type Error struct {
	Kind   ErrorKind
	Detail string
	// RPC is set on client-side Protocol errors built from an error
	// response.
	RPC *jsonrpc.Error
	err error
}

// NewError builds an *Error of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WrapError builds an *Error of the given kind that unwraps to err.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Detail == "":
		return e.Kind.String()
	case e.err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
}

// Message is the text placed in a wire error object.
func (e *Error) Message() string {
	switch {
	case e.Detail == "":
		return e.Kind.String()
	case e.err != nil:
		return e.Detail + ": " + e.err.Error()
	default:
		return e.Detail
	}
}

// Code returns the JSON-RPC error code for the error's kind.
func (e *Error) Code() jsonrpc.ErrorCode {
	return e.Kind.Code()
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) Unwrap() error {
	if e.err != nil {
		return e.err
	}
	if e.RPC != nil {
		return e.RPC
	}
	return nil
}

// AsError classifies an arbitrary error. *Error values pass through,
// message decode failures become InvalidRequest, JSON syntax failures
// Serialization, and anything else Internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, jsonrpc.ErrInvalidMessage) {
		return WrapError(KindInvalidRequest, err, "invalid message")
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return WrapError(KindSerialization, err, "serialization failed")
	}
	return WrapError(KindInternal, err, "internal error")
}

// ToResponse renders err as a wire error for the request with the given id.
func ToResponse(id *jsonrpc.RequestID, err error) *jsonrpc.ErrorResponse {
	e := AsError(err)
	return jsonrpc.NewErrorResponse(id, e.Code(), e.Message(), nil)
}
