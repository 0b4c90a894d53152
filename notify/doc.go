// Package notify implements the outbound notification subsystem: a
// channel-backed Sink shared by every emitter, the logging threshold filter,
// per-request progress trackers and list-changed signalling.
//
// A server owns one queue created with NewQueue. The Sink side is copied into
// each component that emits notifications; a single consumer drains the
// receive side and forwards to a transport, a broker or a test collector.
//
//	sink, out := notify.NewQueue(0)
//	logger := notify.NewLogger(sink)
//	go func() {
//		for n := range out {
//			_ = t.Send(ctx, n)
//		}
//	}()
//	_ = logger.Log(ctx, mcp.LoggingLevelError, "db", "connection lost")
package notify
