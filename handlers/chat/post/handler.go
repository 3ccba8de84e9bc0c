package post

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/respond"
	"github.com/nitin-chandra-28/InferFlow/completion"
	"github.com/nitin-chandra-28/InferFlow/models"
)

const (
	MessageRequired = models.MessageRequired
	UpstreamFailed  = models.UpstreamFailed
	FallbackReply   = models.FallbackReply
)

type Completer interface {
	Complete(ctx context.Context, req completion.Request) (completion.Response, error)
}

func New(log *slog.Logger, completer Completer, model string, maxTokens int) Handler {
	return Handler{
		log:       log,
		completer: completer,
		model:     model,
		maxTokens: maxTokens,
	}
}

type Handler struct {
	log       *slog.Logger
	completer Completer
	model     string
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

	h.log.Info("sending completion request", slog.String("model", h.model), slog.Int("maxTokens", h.maxTokens))
	resp, err := h.completer.Complete(r.Context(), completion.Request{
		Model: h.model,
		Messages: []completion.Message{
			{Role: completion.RoleUser, Content: req.Message},
		},
		MaxTokens: h.maxTokens,
	})
	if err != nil {
		attrs := []any{slog.Any("error", err)}
		var ue completion.UpstreamError
		if errors.As(err, &ue) {
			attrs = append(attrs, slog.Int("status", ue.StatusCode), slog.String("body", ue.Body))
		}
		h.log.Error("failed to get completion", attrs...)
		writeJSON(w, models.ErrorResponse{Error: UpstreamFailed}, http.StatusInternalServerError)
		return
	}

	reply, ok := resp.Content()
	if !ok {
		h.log.Warn("provider returned no content, using fallback reply")
		reply = FallbackReply
	}
	h.log.Debug("received completion", slog.String("reply", reply))

	writeJSON(w, models.ChatPostResponse{Reply: reply}, http.StatusOK)
}

// writeJSON pins the content type, clients pick buffered or streaming
// consumption from it.
func writeJSON(w http.ResponseWriter, body any, status int) {
	w.Header().Set("Content-Type", "application/json")
	respond.WithJSON(w, body, status)
}
