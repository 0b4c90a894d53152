package sampling

import (
	"context"
	"errors"
	"testing"

	"github.com/ggoodman/mcp-engine-go/mcp"
)

var testModels = []ModelInfo{
	{Name: "claude-3-haiku", Cost: 0.2, Speed: 0.9, Intelligence: 0.5},
	{Name: "claude-3-opus", Cost: 0.9, Speed: 0.3, Intelligence: 0.95},
	{Name: "local-small", Cost: 0.0, Speed: 0.6, Intelligence: 0.2},
}

func ptr(f float64) *float64 { return &f }

func TestSelectModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		prefs *mcp.ModelPreferences
		want  string
	}{
		{name: "nil prefs", prefs: nil, want: "claude-3-haiku"},
		{name: "exact hint", prefs: &mcp.ModelPreferences{Hints: []mcp.ModelHint{{Name: "local-small"}}}, want: "local-small"},
		{name: "substring hint", prefs: &mcp.ModelPreferences{Hints: []mcp.ModelHint{{Name: "opus"}}}, want: "claude-3-opus"},
		{name: "first matching hint wins", prefs: &mcp.ModelPreferences{Hints: []mcp.ModelHint{{Name: "gpt"}, {Name: "haiku"}}}, want: "claude-3-haiku"},
		{name: "intelligence", prefs: &mcp.ModelPreferences{IntelligencePriority: ptr(1)}, want: "claude-3-opus"},
		{name: "cost", prefs: &mcp.ModelPreferences{CostPriority: ptr(1)}, want: "local-small"},
		{name: "speed", prefs: &mcp.ModelPreferences{SpeedPriority: ptr(1)}, want: "claude-3-haiku"},
		{name: "no priorities keeps order", prefs: &mcp.ModelPreferences{}, want: "claude-3-haiku"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectModel(testModels, tt.prefs)
			if err != nil {
				t.Fatalf("select: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}

	if _, err := SelectModel(nil, nil); !errors.Is(err, ErrNoModels) {
		t.Fatalf("expected ErrNoModels, got %v", err)
	}
}

type echoSampler struct {
	partials int
	noFinal  bool
}

func (echoSampler) Models(*mcp.ModelPreferences) []ModelInfo { return testModels }

func (s echoSampler) Sample(ctx context.Context, model string, req *mcp.CreateMessageRequest) (<-chan Chunk, error) {
	ch := make(chan Chunk, s.partials+1)
	for i := 0; i < s.partials; i++ {
		ch <- Chunk{Model: model, Content: mcp.TextContent("...")}
	}
	if !s.noFinal {
		ch <- Chunk{Model: model, Content: req.Messages[len(req.Messages)-1].Content, Final: true}
	}
	close(ch)
	return ch, nil
}

func TestRun(t *testing.T) {
	t.Parallel()

	req := NewCreateMessage([]mcp.SamplingMessage{UserText("Hello, world!")}, WithMaxTokens(100), WithHints("opus"))
	res, err := Run(t.Context(), echoSampler{partials: 3}, req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Role != mcp.RoleAssistant || res.Content.Text != "Hello, world!" {
		t.Fatalf("unexpected result: %#v", res)
	}
	if res.Model != "claude-3-opus" {
		t.Fatalf("expected opus, got %s", res.Model)
	}
	if res.StopReason != mcp.StopReasonEndTurn {
		t.Fatalf("expected endTurn, got %s", res.StopReason)
	}
}

func TestRunFailures(t *testing.T) {
	t.Parallel()

	if _, err := Run(t.Context(), echoSampler{}, &mcp.CreateMessageRequest{}); !errors.Is(err, mcp.ErrInvalidParams) {
		t.Fatalf("expected invalid params, got %v", err)
	}
	req := NewCreateMessage([]mcp.SamplingMessage{UserText("x")})
	if _, err := Run(t.Context(), echoSampler{noFinal: true}, req); !errors.Is(err, mcp.ErrInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}
