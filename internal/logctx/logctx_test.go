package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsContextGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(New(slog.NewJSONHandler(&buf, nil))).With(slog.String("component", "test"))

	ctx := WithConnData(context.Background(), &ConnData{ConnID: "c1", Transport: "stdio"})
	ctx = WithRPCMessage(ctx, &RPCMessage{Method: "tools/call", ID: "7", Type: "request"})
	ctx = WithToolCallData(ctx, &ToolCallData{ToolName: "echo"})
	log.InfoContext(ctx, "engine.handle_request.ok")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec["component"] != "test" {
		t.Fatalf("WithAttrs lost the wrapper: %v", rec)
	}
	rpc, _ := rec["rpc"].(map[string]any)
	if rpc["method"] != "tools/call" || rpc["id"] != "7" {
		t.Fatalf("unexpected rpc group: %v", rec["rpc"])
	}
	conn, _ := rec["conn"].(map[string]any)
	if conn["id"] != "c1" || conn["transport"] != "stdio" {
		t.Fatalf("unexpected conn group: %v", rec["conn"])
	}
	tool, _ := rec["tool"].(map[string]any)
	if tool["name"] != "echo" {
		t.Fatalf("unexpected tool group: %v", rec["tool"])
	}
}
