package logger

import (
	"context"
	"log/slog"
)

// AsyncHandler buffers records on a channel and writes them from a single
// background goroutine, keeping callers off the I/O path.
type AsyncHandler struct {
	next       slog.Handler
	records    chan recordCtx
	dropOnFull bool
}

type recordCtx struct {
	ctx context.Context
	r   slog.Record
}

// NewAsyncHandler wraps next with a buffered channel of the given size.
// When dropOnFull is true, records are discarded instead of blocking the
// caller once the buffer is saturated.
func NewAsyncHandler(next slog.Handler, bufSize int, dropOnFull bool) *AsyncHandler {
	h := &AsyncHandler{
		next:       next,
		records:    make(chan recordCtx, bufSize),
		dropOnFull: dropOnFull,
	}
	go h.loop()
	return h
}

func (h *AsyncHandler) loop() {
	for rc := range h.records {
		_ = h.next.Handle(rc.ctx, rc.r)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	rc := recordCtx{ctx: ctx, r: r.Clone()}
	if h.dropOnFull {
		select {
		case h.records <- rc:
		default:
			// buffer full, drop rather than block the caller
		}
		return nil
	}
	h.records <- rc
	return nil
}

// WithAttrs and WithGroup spawn a new handler (and background loop) over the
// derived next handler, since the buffered records already carry a handler
// reference and cannot be redirected after the fact.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewAsyncHandler(h.next.WithAttrs(attrs), cap(h.records), h.dropOnFull)
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return NewAsyncHandler(h.next.WithGroup(name), cap(h.records), h.dropOnFull)
}
