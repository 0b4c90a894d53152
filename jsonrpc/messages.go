package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// Kind identifies which of the four wire shapes a Message has.
type Kind int

const (
	KindRequest Kind = iota + 1
	KindNotification
	KindResponse
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Message is the closed union of JSON-RPC messages: *Request, *Notification,
// *Response and *ErrorResponse.
type Message interface {
	Kind() Kind
	isMessage()
}

// Request expects exactly one matching Response or ErrorResponse.
type Request struct {
	ID     RequestID
	Method string
	Params json.RawMessage
}

// Notification is fire-and-forget; it never carries an ID and never produces
// a reply.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Response carries the successful result of the request with the same ID.
type Response struct {
	ID     RequestID
	Result json.RawMessage
}

// ErrorResponse carries the failure of the request with the same ID. ID is
// nil when the failing input was too malformed to recover one.
type ErrorResponse struct {
	ID    *RequestID
	Error Error
}

func (*Request) Kind() Kind       { return KindRequest }
func (*Notification) Kind() Kind  { return KindNotification }
func (*Response) Kind() Kind      { return KindResponse }
func (*ErrorResponse) Kind() Kind { return KindError }

func (*Request) isMessage()       {}
func (*Notification) isMessage()  {}
func (*Response) isMessage()      {}
func (*ErrorResponse) isMessage() {}

// wireMessage is the flat representation every kind is encoded with.
type wireMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	ID             *RequestID      `json:"id,omitempty"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
}

// NewRequest builds a request, marshaling params unless they are already raw
// JSON. Nil params are omitted from the wire.
func NewRequest(id RequestID, method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{ID: id, Method: method, Params: raw}, nil
}

// NewNotification builds a notification, marshaling params unless they are
// already raw JSON.
func NewNotification(method string, params any) (*Notification, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Notification{Method: method, Params: raw}, nil
}

// NewResponse builds a successful JSON-RPC response object.
func NewResponse(id RequestID, result any) (*Response, error) {
	if raw, ok := result.(json.RawMessage); ok {
		return &Response{ID: id, Result: raw}, nil
	}
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &Response{ID: id, Result: resultBytes}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code. A
// data value that cannot be marshaled is dropped.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *ErrorResponse {
	resp := &ErrorResponse{ID: id, Error: Error{Code: code, Message: message}}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			resp.Error.Data = b
		}
	}
	return resp
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	if bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	return b, nil
}

func (r *Request) MarshalJSON() ([]byte, error) {
	id := r.ID
	return json.Marshal(wireMessage{JSONRPCVersion: ProtocolVersion, ID: &id, Method: r.Method, Params: r.Params})
}

func (n *Notification) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{JSONRPCVersion: ProtocolVersion, Method: n.Method, Params: n.Params})
}

func (r *Response) MarshalJSON() ([]byte, error) {
	id := r.ID
	result := r.Result
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return json.Marshal(wireMessage{JSONRPCVersion: ProtocolVersion, ID: &id, Result: result})
}

func (e *ErrorResponse) MarshalJSON() ([]byte, error) {
	rpcErr := e.Error
	id := e.ID
	if id == nil {
		// A null id is still written out.
		id = &RequestID{}
	}
	return json.Marshal(wireMessage{JSONRPCVersion: ProtocolVersion, ID: id, Error: &rpcErr})
}

// Encode serializes a message to its wire form.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	return json.Marshal(m)
}

// inboundMessage keeps the raw id so that an explicit "id": null is told
// apart from an absent id.
type inboundMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	ID             json.RawMessage `json:"id"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params"`
	Result         json.RawMessage `json:"result"`
	Error          *Error          `json:"error"`
}

// Decode parses one wire message and classifies it by field pattern:
// method without an id key is a Notification, method with an id key (null
// included) a Request, result a Response and error an ErrorResponse.
// Failures wrap ErrInvalidMessage.
func Decode(data []byte) (Message, error) {
	var raw inboundMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	if raw.JSONRPCVersion != ProtocolVersion {
		return nil, fmt.Errorf("%w: expected jsonrpc %q, got %q", ErrInvalidMessage, ProtocolVersion, raw.JSONRPCVersion)
	}

	hasID := raw.ID != nil
	var id RequestID
	if hasID {
		if err := id.UnmarshalJSON(raw.ID); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
	}

	hasMethod := raw.Method != ""
	hasResult := raw.Result != nil
	hasError := raw.Error != nil

	switch {
	case hasMethod && (hasResult || hasError):
		return nil, fmt.Errorf("%w: request message cannot have result or error fields", ErrInvalidMessage)
	case hasMethod && !hasID:
		return &Notification{Method: raw.Method, Params: raw.Params}, nil
	case hasMethod:
		return &Request{ID: id, Method: raw.Method, Params: raw.Params}, nil
	case hasResult && hasError:
		return nil, fmt.Errorf("%w: response message cannot have both result and error fields", ErrInvalidMessage)
	case hasResult:
		if id.IsNil() {
			return nil, fmt.Errorf("%w: response message must carry an id", ErrInvalidMessage)
		}
		return &Response{ID: id, Result: raw.Result}, nil
	case hasError:
		if id.IsNil() {
			return &ErrorResponse{Error: *raw.Error}, nil
		}
		return &ErrorResponse{ID: &id, Error: *raw.Error}, nil
	default:
		return nil, fmt.Errorf("%w: message has neither method, result nor error", ErrInvalidMessage)
	}
}

// IDOf returns the ID carried by a message, if any.
func IDOf(m Message) (RequestID, bool) {
	switch msg := m.(type) {
	case *Request:
		return msg.ID, true
	case *Response:
		return msg.ID, true
	case *ErrorResponse:
		if msg.ID != nil {
			return *msg.ID, true
		}
	}
	return RequestID{}, false
}
