package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/a-h/respond"
	"github.com/nitin-chandra-28/InferFlow/models"
	"github.com/tmc/langchaingo/llms"
)

const (
	MessageRequired = models.MessageRequired
	UpstreamFailed  = models.UpstreamFailed
	FallbackReply   = models.FallbackReply
)

func New(log *slog.Logger, llm llms.Model, maxTokens int) Handler {
	return Handler{
		log:       log,
		llm:       llm,
		maxTokens: maxTokens,
	}
}

// Handler relays the model's output to the client as it is generated, as
// plain text chunks. If the model fails part way through, the connection is
// aborted so that the client sees a failed read rather than a short reply.
type Handler struct {
	log       *slog.Logger
	llm       llms.Model
	maxTokens int
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.ChatPostRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		h.log.Warn("failed to decode body", slog.Any("error", err))
		writeJSON(w, models.ErrorResponse{Error: MessageRequired}, http.StatusBadRequest)
		return
	}
	if err = req.Validate(); err != nil {
		writeJSON(w, models.ErrorResponse{Error: MessageRequired}, http.StatusBadRequest)
		return
	}

	h.log.Info("streaming content", slog.Int("maxTokens", h.maxTokens))

	var written int
	f := func(ctx context.Context, chunk []byte) error {
		select {
		case <-ctx.Done():
			return nil
		default:
			if len(chunk) == 0 {
				return nil
			}
			if written == 0 {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.Header().Set("Cache-Control", "no-cache")
				w.Header().Set("X-Content-Type-Options", "nosniff")
			}
			n, err := w.Write(chunk)
			written += n
			if err != nil {
				return err
			}
			if flusher, canFlush := w.(http.Flusher); canFlush {
				flusher.Flush()
			}
			return nil
		}
	}

	_, err = h.llm.GenerateContent(r.Context(), []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, req.Message),
	}, llms.WithMaxTokens(h.maxTokens), llms.WithStreamingFunc(f))
	if err != nil {
		h.log.Error("failed to generate content", slog.Any("error", err), slog.Int("bytesWritten", written))
		if written > 0 {
			panic(http.ErrAbortHandler)
		}
		writeJSON(w, models.ErrorResponse{Error: UpstreamFailed}, http.StatusInternalServerError)
		return
	}
	if written == 0 {
		h.log.Warn("model streamed no content, using fallback reply")
		if err = f(r.Context(), []byte(FallbackReply)); err != nil {
			h.log.Error("failed to write fallback reply", slog.Any("error", err))
		}
	}
}

func writeJSON(w http.ResponseWriter, body any, status int) {
	w.Header().Set("Content-Type", "application/json")
	respond.WithJSON(w, body, status)
}
