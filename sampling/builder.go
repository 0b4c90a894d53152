package sampling

import (
	"github.com/ggoodman/mcp-engine-go/mcp"
)

// UserText returns a SamplingMessage authored by the user with a single text block.
func UserText(text string) mcp.SamplingMessage {
	return mcp.SamplingMessage{Role: mcp.RoleUser, Content: mcp.TextContent(text)}
}

// AssistantText returns a SamplingMessage authored by the assistant with a single text block.
func AssistantText(text string) mcp.SamplingMessage {
	return mcp.SamplingMessage{Role: mcp.RoleAssistant, Content: mcp.TextContent(text)}
}

// CreateOption mutates a CreateMessageRequest during construction.
type CreateOption func(*mcp.CreateMessageRequest)

// WithSystemPrompt sets the system prompt.
func WithSystemPrompt(prompt string) CreateOption {
	return func(r *mcp.CreateMessageRequest) { r.SystemPrompt = prompt }
}

// WithMaxTokens sets the MaxTokens field.
func WithMaxTokens(n int) CreateOption {
	return func(r *mcp.CreateMessageRequest) { r.MaxTokens = n }
}

// WithTemperature sets the Temperature field.
func WithTemperature(t float64) CreateOption {
	return func(r *mcp.CreateMessageRequest) { r.Temperature = t }
}

// WithStopSequences sets stop sequences.
func WithStopSequences(stops ...string) CreateOption {
	return func(r *mcp.CreateMessageRequest) { r.StopSequences = append([]string(nil), stops...) }
}

// WithModelPreferences sets model preferences.
func WithModelPreferences(prefs *mcp.ModelPreferences) CreateOption {
	return func(r *mcp.CreateMessageRequest) { r.ModelPreferences = prefs }
}

// WithHints appends model name hints, creating the preferences if needed.
func WithHints(names ...string) CreateOption {
	return func(r *mcp.CreateMessageRequest) {
		if r.ModelPreferences == nil {
			r.ModelPreferences = &mcp.ModelPreferences{}
		}
		for _, n := range names {
			r.ModelPreferences.Hints = append(r.ModelPreferences.Hints, mcp.ModelHint{Name: n})
		}
	}
}

// NewCreateMessage constructs a *CreateMessageRequest with the provided messages and options.
func NewCreateMessage(msgs []mcp.SamplingMessage, opts ...CreateOption) *mcp.CreateMessageRequest {
	r := &mcp.CreateMessageRequest{Messages: append([]mcp.SamplingMessage(nil), msgs...)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ValidateCreateMessage performs sanity checks on a CreateMessageRequest.
// Failures are reported as InvalidParams.
func ValidateCreateMessage(r *mcp.CreateMessageRequest) error {
	if r == nil {
		return mcp.NewError(mcp.KindInvalidParams, "nil request")
	}
	if len(r.Messages) == 0 {
		return mcp.NewError(mcp.KindInvalidParams, "no messages provided")
	}
	if r.MaxTokens < 0 {
		return mcp.NewError(mcp.KindInvalidParams, "maxTokens must not be negative")
	}
	for i, m := range r.Messages {
		if m.Role != mcp.RoleUser && m.Role != mcp.RoleAssistant {
			return mcp.NewError(mcp.KindInvalidParams, "invalid role %q in message %d", m.Role, i)
		}
		if m.Content.Type == "" {
			return mcp.NewError(mcp.KindInvalidParams, "empty content type in message %d", i)
		}
	}
	if p := r.ModelPreferences; p != nil {
		for name, v := range map[string]*float64{
			"costPriority":         p.CostPriority,
			"speedPriority":        p.SpeedPriority,
			"intelligencePriority": p.IntelligencePriority,
		} {
			if v != nil && (*v < 0 || *v > 1) {
				return mcp.NewError(mcp.KindInvalidParams, "%s must be within [0, 1]", name)
			}
		}
	}
	return nil
}
