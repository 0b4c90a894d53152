package sampling

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/ggoodman/mcp-engine-go/mcp"
)

// ErrNoModels is returned by SelectModel when no candidate model exists.
var ErrNoModels = errors.New("no models available")

// ModelInfo describes a model a Sampler can use. Cost, Speed and
// Intelligence are relative values in [0, 1].
type ModelInfo struct {
	Name         string
	Cost         float64
	Speed        float64
	Intelligence float64
	MaxTokens    int
}

// Chunk is one step of a streamed sample. The last chunk has Final set.
type Chunk struct {
	Model      string
	Content    mcp.ContentBlock
	Final      bool
	StopReason string
	Err        error
}

// Sampler produces model output for sampling/createMessage requests.
// Concrete model backends live outside this module.
type Sampler interface {
	// Models lists the models that may serve a request with prefs.
	Models(prefs *mcp.ModelPreferences) []ModelInfo
	// Sample streams chunks for req using the named model. The channel is
	// closed after the final chunk or when ctx is done.
	Sample(ctx context.Context, model string, req *mcp.CreateMessageRequest) (<-chan Chunk, error)
}

// SelectModel picks a model for prefs. Hints are tried in order, first as an
// exact name match and then as a substring. Without a matching hint models
// are scored by the weighted priorities, with cost counted inversely; ties
// keep the listing order. Nil prefs select the first model.
func SelectModel(models []ModelInfo, prefs *mcp.ModelPreferences) (string, error) {
	if len(models) == 0 {
		return "", ErrNoModels
	}
	if prefs == nil {
		return models[0].Name, nil
	}

	for _, h := range prefs.Hints {
		if h.Name == "" {
			continue
		}
		for _, m := range models {
			if m.Name == h.Name {
				return m.Name, nil
			}
		}
		for _, m := range models {
			if strings.Contains(m.Name, h.Name) {
				return m.Name, nil
			}
		}
	}

	type scored struct {
		name  string
		score float64
	}
	ranked := make([]scored, len(models))
	for i, m := range models {
		var s float64
		if p := prefs.CostPriority; p != nil {
			s += (1 - m.Cost) * *p
		}
		if p := prefs.SpeedPriority; p != nil {
			s += m.Speed * *p
		}
		if p := prefs.IntelligencePriority; p != nil {
			s += m.Intelligence * *p
		}
		ranked[i] = scored{name: m.Name, score: s}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	return ranked[0].name, nil
}

// Run answers req with s: it validates the request, selects a model, and
// drains the sample stream until the final chunk.
func Run(ctx context.Context, s Sampler, req *mcp.CreateMessageRequest) (*mcp.CreateMessageResult, error) {
	if err := ValidateCreateMessage(req); err != nil {
		return nil, err
	}
	model, err := SelectModel(s.Models(req.ModelPreferences), req.ModelPreferences)
	if err != nil {
		return nil, mcp.WrapError(mcp.KindInternal, err, "select model")
	}

	chunks, err := s.Sample(ctx, model, req)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case c, ok := <-chunks:
			if !ok {
				return nil, mcp.NewError(mcp.KindInternal, "no final response")
			}
			if c.Err != nil {
				return nil, c.Err
			}
			if !c.Final {
				continue
			}
			res := &mcp.CreateMessageResult{
				Role:       mcp.RoleAssistant,
				Content:    c.Content,
				Model:      c.Model,
				StopReason: c.StopReason,
			}
			if res.Model == "" {
				res.Model = model
			}
			if res.StopReason == "" {
				res.StopReason = mcp.StopReasonEndTurn
			}
			return res, nil
		}
	}
}
