package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/ggoodman/mcp-engine-go/mcp"
)

// Tracker reports progress for one request. It lives for the duration of the
// request that carried the progress token and emits one notifications/progress
// per Update. Values are forwarded as given; non-monotonic progress is allowed.
type Tracker struct {
	sink  Sink
	token mcp.ProgressToken

	mu      sync.Mutex
	current float64
	total   *float64
}

// NewTracker creates a tracker for token. total may be nil.
func NewTracker(sink Sink, token mcp.ProgressToken, total *float64) *Tracker {
	return &Tracker{sink: sink, token: token, total: total}
}

// Token returns the progress token the tracker reports against.
func (t *Tracker) Token() mcp.ProgressToken { return t.token }

// Current returns the last reported progress value.
func (t *Tracker) Current() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Total returns the known total, if any.
func (t *Tracker) Total() *float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Update records progress and emits a notification. A non-nil total replaces
// the tracker's total; a nil total keeps the previous one.
func (t *Tracker) Update(ctx context.Context, progress float64, total *float64) error {
	t.mu.Lock()
	t.current = progress
	if total != nil {
		v := *total
		t.total = &v
	}
	params := mcp.ProgressNotificationParams{
		ProgressToken: t.token,
		Progress:      progress,
		Total:         t.total,
	}
	t.mu.Unlock()

	return t.sink.Notify(ctx, mcp.ProgressNotificationMethod, params)
}

// Report implements a float-only progress interface; a zero total means
// unknown.
func (t *Tracker) Report(ctx context.Context, progress, total float64) error {
	if total == 0 {
		return t.Update(ctx, progress, nil)
	}
	return t.Update(ctx, progress, &total)
}

type trackerKey struct{}

// WithTracker returns a new context carrying the provided tracker.
func WithTracker(ctx context.Context, t *Tracker) context.Context {
	if t == nil {
		return ctx
	}
	return context.WithValue(ctx, trackerKey{}, t)
}

// TrackerFrom retrieves the request's Tracker from the context if the
// request carried a progress token.
func TrackerFrom(ctx context.Context) (*Tracker, bool) {
	t, ok := ctx.Value(trackerKey{}).(*Tracker)
	return t, ok && t != nil
}

// ProgressTokenFrom extracts _meta.progressToken from raw request params.
// Numeric tokens are preserved verbatim as json.Number.
func ProgressTokenFrom(params json.RawMessage) (mcp.ProgressToken, bool) {
	if len(params) == 0 {
		return nil, false
	}
	var carrier struct {
		Meta *struct {
			ProgressToken any `json:"progressToken"`
		} `json:"_meta"`
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.UseNumber()
	if err := dec.Decode(&carrier); err != nil || carrier.Meta == nil {
		return nil, false
	}
	switch tok := carrier.Meta.ProgressToken.(type) {
	case string:
		return tok, true
	case json.Number:
		return tok, true
	default:
		return nil, false
	}
}
