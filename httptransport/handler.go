package httptransport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/ggoodman/mcp-engine-go/internal/logctx"
	"github.com/ggoodman/mcp-engine-go/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/transport"
)

// defaultMaxBodyBytes bounds a single POSTed message.
const defaultMaxBodyBytes = 4 << 20

var (
	jsonMediaType  = contenttype.NewMediaType("application/json")
	jsonMediaTypes = []contenttype.MediaType{jsonMediaType}
)

// Handler serves one transport.Handler over HTTP POST.
type Handler struct {
	h        transport.Handler
	log      *slog.Logger
	maxBytes int64
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithLogger overrides the handler's logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithMaxBodyBytes bounds the accepted request body size.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBytes = n
		}
	}
}

// NewHandler returns an http.Handler dispatching POSTed messages to h.
// Server-initiated notifications have no channel on this transport; callers
// that need them should drain the server's queue elsewhere, for instance
// into a broker.
func NewHandler(h transport.Handler, opts ...HandlerOption) *Handler {
	hh := &Handler{h: h, log: slog.Default(), maxBytes: defaultMaxBodyBytes}
	for _, opt := range opts {
		opt(hh)
	}
	return hh
}

// writeJSONError emits a minimal JSON body for HTTP-layer rejections before a
// JSON-RPC message could be read.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := logctx.WithConnData(r.Context(), &logctx.ConnData{
		ConnID:     uuid.NewString(),
		Transport:  "http",
		RemoteAddr: r.RemoteAddr,
	})

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		h.log.WarnContext(ctx, "http.method.unsupported", slog.String("method", r.Method))
		return
	}

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "http.content_type.unsupported")
		return
	}
	if r.Header.Get("Accept") != "" {
		if _, _, err := contenttype.GetAcceptableMediaType(r, jsonMediaTypes); err != nil {
			writeJSONError(w, http.StatusNotAcceptable, "client must accept application/json")
			h.log.WarnContext(ctx, "http.accept.unsupported", slog.String("accept", r.Header.Get("Accept")))
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		h.log.WarnContext(ctx, "http.body.read_fail", slog.String("err", err.Error()))
		return
	}

	msg, err := transport.Decode(body)
	if err != nil {
		h.log.InfoContext(ctx, "http.decode_fail", slog.String("err", err.Error()))
		h.writeMessage(w, r, http.StatusBadRequest, mcp.ToResponse(nil, err))
		return
	}

	reply := h.h.Handle(ctx, msg)
	if reply == nil {
		w.WriteHeader(http.StatusAccepted)
		h.log.DebugContext(ctx, "http.accepted", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return
	}
	h.writeMessage(w, r, http.StatusOK, reply)
	h.log.DebugContext(ctx, "http.replied", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

func (h *Handler) writeMessage(w http.ResponseWriter, r *http.Request, status int, msg jsonrpc.Message) {
	b, err := transport.Encode(msg)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode reply")
		h.log.ErrorContext(r.Context(), "http.encode_fail", slog.String("err", err.Error()))
		return
	}
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
