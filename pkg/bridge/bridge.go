// Package bridge exposes a Runtime's Channel over HTTP, for collaborators
// that cannot speak the broker's native protocol directly. It is a
// stateless façade: the four endpoints just translate JSON/SSE requests
// into Channel calls.
package bridge

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chris-alexander-pop/agentcore/pkg/api/middleware"
	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/errors"
	"github.com/chris-alexander-pop/agentcore/pkg/logger"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
	"github.com/chris-alexander-pop/agentcore/pkg/runtime"
)

// Server is an http.Handler exposing rt's Channel to remote callers.
type Server struct {
	rt  *runtime.Runtime
	mux *http.ServeMux
}

// NewServer builds the bridge's route table, wrapped in the teacher's
// request-id, secure-JSON, CORS and security-headers middleware.
func NewServer(rt *runtime.Runtime) *Server {
	s := &Server{rt: rt, mux: http.NewServeMux()}

	s.mux.HandleFunc("POST /publish", s.handlePublish)
	s.mux.HandleFunc("POST /publish_multi", s.handlePublishMulti)
	s.mux.HandleFunc("POST /subscribe", s.handleSubscribe)
	s.mux.HandleFunc("POST /reply-topics", s.handleReplyTopics)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	chain := middleware.RequestIDMiddleware()(
		middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig())(
			middleware.CORS(middleware.DefaultCORSConfig())(
				middleware.SecureJSONMiddleware()(s.mux))))
	chain.ServeHTTP(w, r)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New(errors.CodeInvalidArgument, "invalid request body", err))
		return
	}

	reply, err := s.rt.Channel().Publish(r.Context(), req.Addr.toAddress(), req.Msg.toRaw(), publishOptions(req)...)
	if err != nil {
		writeError(w, err)
		return
	}
	if reply == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rawToDTO(*reply))
}

func (s *Server) handlePublishMulti(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New(errors.CodeInvalidArgument, "invalid request body", err))
		return
	}

	it, err := s.rt.Channel().PublishMulti(r.Context(), req.Addr.toAddress(), req.Msg.toRaw(), publishOptions(req)...)
	if err != nil {
		writeError(w, err)
		return
	}
	defer it.Close(context.Background())

	flusher, ok := beginSSE(w)
	if !ok {
		writeError(w, errors.New(errors.CodeInternal, "streaming unsupported", nil))
		return
	}

	for {
		raw, err := it.Next(r.Context())
		if err != nil {
			if goerrors.Is(err, io.EOF) {
				writeSSE(w, flusher, "stop", struct{}{})
				return
			}
			writeSSE(w, flusher, "error", toErrorEvent(err))
			return
		}
		writeSSE(w, flusher, "message", rawToDTO(raw))
	}
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New(errors.CodeInvalidArgument, "invalid request body", err))
		return
	}

	ctx := r.Context()
	received := make(chan message.RawMessage, 64)
	sub, err := s.rt.Channel().Subscribe(ctx, req.Addr.toAddress(), func(_ context.Context, raw message.RawMessage) {
		select {
		case received <- raw:
		case <-ctx.Done():
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Unsubscribe(context.Background())

	flusher, ok := beginSSE(w)
	if !ok {
		writeError(w, errors.New(errors.CodeInternal, "streaming unsupported", nil))
		return
	}

	for {
		select {
		case raw := <-received:
			writeSSE(w, flusher, "message", rawToDTO(raw))
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleReplyTopics(w http.ResponseWriter, r *http.Request) {
	topic, err := s.rt.Channel().NewReplyTopic(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replyTopicResponse{Topic: topic})
}

func publishOptions(req publishRequest) []channel.PublishOption {
	var opts []channel.PublishOption
	if req.Request {
		opts = append(opts, channel.WithRequest())
	}
	if req.Reply != "" {
		opts = append(opts, channel.WithReply(req.Reply))
	}
	if req.TimeoutMS > 0 {
		opts = append(opts, channel.WithTimeout(time.Duration(req.TimeoutMS)*time.Millisecond))
	}
	if req.Probe != nil && !*req.Probe {
		opts = append(opts, channel.WithoutProbe())
	}
	return opts
}

func beginSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, body)
	flusher.Flush()
}

func toErrorEvent(err error) errorEvent {
	var ae *errors.AppError
	if goerrors.As(err, &ae) {
		return errorEvent{Code: ae.Code, Message: ae.Message}
	}
	return errorEvent{Code: errors.CodeInternal, Message: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	logger.L().Debug("bridge request failed", "error", err, "status", status)
	writeJSON(w, status, toErrorEvent(err))
}
