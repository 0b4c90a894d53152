package sampling

import (
	"errors"
	"testing"

	"github.com/ggoodman/mcp-engine-go/mcp"
)

func TestNewCreateMessageBasic(t *testing.T) {
	t.Parallel()

	msg := UserText("hello")
	r := NewCreateMessage([]mcp.SamplingMessage{msg}, WithSystemPrompt("system"), WithMaxTokens(10), WithHints("claude"))
	if err := ValidateCreateMessage(r); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := r.SystemPrompt; got != "system" {
		t.Fatalf("systemPrompt mismatch: %s", got)
	}
	if r.MaxTokens != 10 {
		t.Fatalf("maxTokens mismatch: %d", r.MaxTokens)
	}
	if len(r.Messages) != 1 || r.Messages[0].Content.Text != "hello" {
		t.Fatalf("unexpected messages: %#v", r.Messages)
	}
	if r.ModelPreferences == nil || len(r.ModelPreferences.Hints) != 1 || r.ModelPreferences.Hints[0].Name != "claude" {
		t.Fatalf("unexpected preferences: %#v", r.ModelPreferences)
	}
}

func TestValidateCreateMessageErrors(t *testing.T) {
	t.Parallel()

	bad := 1.5
	cases := map[string]*mcp.CreateMessageRequest{
		"nil":      nil,
		"empty":    {},
		"role":     {Messages: []mcp.SamplingMessage{{Role: "system", Content: mcp.TextContent("x")}}},
		"content":  {Messages: []mcp.SamplingMessage{{Role: mcp.RoleUser}}},
		"priority": {Messages: []mcp.SamplingMessage{UserText("x")}, ModelPreferences: &mcp.ModelPreferences{CostPriority: &bad}},
	}
	for name, req := range cases {
		err := ValidateCreateMessage(req)
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !errors.Is(err, mcp.ErrInvalidParams) {
			t.Fatalf("%s: expected invalid params, got %v", name, err)
		}
	}
}
