package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Method is an MCP method identifier used in JSON-RPC messages.
type Method string

// MCP method names and notifications.
const (
	// Initialization
	InitializeMethod              Method = "initialize"
	InitializedNotificationMethod Method = "notifications/initialized"

	// Tools
	ToolsListMethod                    Method = "tools/list"
	ToolsCallMethod                    Method = "tools/call"
	ToolsListChangedNotificationMethod Method = "notifications/tools/list_changed"

	// Resources
	ResourcesListMethod                    Method = "resources/list"
	ResourcesReadMethod                    Method = "resources/read"
	ResourcesTemplatesListMethod           Method = "resources/templates/list"
	ResourcesSubscribeMethod               Method = "resources/subscribe"
	ResourcesUnsubscribeMethod             Method = "resources/unsubscribe"
	ResourcesListChangedNotificationMethod Method = "notifications/resources/list_changed"
	ResourcesUpdatedNotificationMethod     Method = "notifications/resources/updated"

	// Prompts
	PromptsListMethod                    Method = "prompts/list"
	PromptsGetMethod                     Method = "prompts/get"
	PromptsListChangedNotificationMethod Method = "notifications/prompts/list_changed"

	// Logging
	LoggingSetLevelMethod            Method = "logging/setLevel"
	LoggingMessageNotificationMethod Method = "notifications/message"

	// Sampling
	SamplingCreateMessageMethod Method = "sampling/createMessage"

	// Completion
	CompletionCompleteMethod Method = "completion/complete"

	// Roots
	RootsListMethod                    Method = "roots/list"
	RootsListChangedNotificationMethod Method = "notifications/roots/list_changed"

	// General
	PingMethod                  Method = "ping"
	CancelledNotificationMethod Method = "notifications/cancelled"
	ProgressNotificationMethod  Method = "notifications/progress"
)

// ErrUnknownMethod is returned when a payload shape is requested for a
// method outside the protocol vocabulary.
var ErrUnknownMethod = errors.New("unknown method")

var requestMethods = []Method{
	InitializeMethod,
	PingMethod,
	ResourcesListMethod,
	ResourcesTemplatesListMethod,
	ResourcesReadMethod,
	ResourcesSubscribeMethod,
	ResourcesUnsubscribeMethod,
	PromptsListMethod,
	PromptsGetMethod,
	ToolsListMethod,
	ToolsCallMethod,
	LoggingSetLevelMethod,
	CompletionCompleteMethod,
	RootsListMethod,
	SamplingCreateMessageMethod,
}

var notificationMethods = []Method{
	InitializedNotificationMethod,
	CancelledNotificationMethod,
	ProgressNotificationMethod,
	LoggingMessageNotificationMethod,
	ResourcesUpdatedNotificationMethod,
	ResourcesListChangedNotificationMethod,
	ToolsListChangedNotificationMethod,
	PromptsListChangedNotificationMethod,
	RootsListChangedNotificationMethod,
}

// RequestMethods returns every request method in the vocabulary.
func RequestMethods() []Method {
	return append([]Method(nil), requestMethods...)
}

// NotificationMethods returns every notification method in the vocabulary.
func NotificationMethods() []Method {
	return append([]Method(nil), notificationMethods...)
}

// Methods returns the full vocabulary: requests first, then notifications.
func Methods() []Method {
	out := make([]Method, 0, len(requestMethods)+len(notificationMethods))
	out = append(out, requestMethods...)
	return append(out, notificationMethods...)
}

// IsNotification reports whether m names a notification.
func (m Method) IsNotification() bool {
	for _, n := range notificationMethods {
		if n == m {
			return true
		}
	}
	return false
}

// Known reports whether m is part of the vocabulary.
func (m Method) Known() bool {
	_, err := NewParams(m)
	return err == nil
}

// NewParams returns a pointer to the zero params value for m: the request
// params shape for request methods and the notification params shape for
// notifications.
func NewParams(m Method) (any, error) {
	switch m {
	case InitializeMethod:
		return &InitializeRequest{}, nil
	case PingMethod:
		return &PingRequest{}, nil
	case ResourcesListMethod:
		return &ListResourcesRequest{}, nil
	case ResourcesTemplatesListMethod:
		return &ListResourceTemplatesRequest{}, nil
	case ResourcesReadMethod:
		return &ReadResourceRequest{}, nil
	case ResourcesSubscribeMethod:
		return &SubscribeRequest{}, nil
	case ResourcesUnsubscribeMethod:
		return &UnsubscribeRequest{}, nil
	case PromptsListMethod:
		return &ListPromptsRequest{}, nil
	case PromptsGetMethod:
		return &GetPromptRequest{}, nil
	case ToolsListMethod:
		return &ListToolsRequest{}, nil
	case ToolsCallMethod:
		return &CallToolRequest{}, nil
	case LoggingSetLevelMethod:
		return &SetLevelRequest{}, nil
	case CompletionCompleteMethod:
		return &CompleteRequest{}, nil
	case RootsListMethod:
		return &ListRootsRequest{}, nil
	case SamplingCreateMessageMethod:
		return &CreateMessageRequest{}, nil

	case InitializedNotificationMethod:
		return &InitializedNotification{}, nil
	case CancelledNotificationMethod:
		return &CancelledNotification{}, nil
	case ProgressNotificationMethod:
		return &ProgressNotificationParams{}, nil
	case LoggingMessageNotificationMethod:
		return &LoggingMessageNotification{}, nil
	case ResourcesUpdatedNotificationMethod:
		return &ResourceUpdatedNotification{}, nil
	case ResourcesListChangedNotificationMethod:
		return &ResourceListChangedNotification{}, nil
	case ToolsListChangedNotificationMethod:
		return &ToolListChangedNotification{}, nil
	case PromptsListChangedNotificationMethod:
		return &PromptListChangedNotification{}, nil
	case RootsListChangedNotificationMethod:
		return &RootsListChangedNotification{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, m)
}

// NewResult returns a pointer to the zero result value for request method m.
func NewResult(m Method) (any, error) {
	switch m {
	case InitializeMethod:
		return &InitializeResult{}, nil
	case PingMethod, ResourcesSubscribeMethod, ResourcesUnsubscribeMethod, LoggingSetLevelMethod:
		return &EmptyResult{}, nil
	case ResourcesListMethod:
		return &ListResourcesResult{}, nil
	case ResourcesTemplatesListMethod:
		return &ListResourceTemplatesResult{}, nil
	case ResourcesReadMethod:
		return &ReadResourceResult{}, nil
	case PromptsListMethod:
		return &ListPromptsResult{}, nil
	case PromptsGetMethod:
		return &GetPromptResult{}, nil
	case ToolsListMethod:
		return &ListToolsResult{}, nil
	case ToolsCallMethod:
		return &CallToolResult{}, nil
	case CompletionCompleteMethod:
		return &CompleteResult{}, nil
	case RootsListMethod:
		return &ListRootsResult{}, nil
	case SamplingCreateMessageMethod:
		return &CreateMessageResult{}, nil
	}
	return nil, fmt.Errorf("%w: %s has no result shape", ErrUnknownMethod, m)
}

// DecodeParams decodes raw params into the shape registered for m. Empty
// params decode to the zero value.
func DecodeParams(m Method, raw json.RawMessage) (any, error) {
	v, err := NewParams(m)
	if err != nil {
		return nil, err
	}
	if err := decodeInto(raw, v); err != nil {
		return nil, fmt.Errorf("decode %s params: %w", m, err)
	}
	return v, nil
}

// DecodeResult decodes a raw result into the shape registered for m.
func DecodeResult(m Method, raw json.RawMessage) (any, error) {
	v, err := NewResult(m)
	if err != nil {
		return nil, err
	}
	if err := decodeInto(raw, v); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", m, err)
	}
	return v, nil
}

func decodeInto(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
