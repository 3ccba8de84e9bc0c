package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nitin-chandra-28/InferFlow/models"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	chunks   []string
	err      error
	calls    int
	messages []llms.MessageContent
	options  llms.CallOptions
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	m.messages = messages
	for _, o := range options {
		o(&m.options)
	}
	var sb strings.Builder
	for _, c := range m.chunks {
		if m.options.StreamingFunc != nil {
			if err := m.options.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
		sb.WriteString(c)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: sb.String()}},
	}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func newTestHandler(m *fakeModel) Handler {
	return New(slog.New(slog.NewJSONHandler(io.Discard, nil)), m, 512)
}

func TestHandlerStreamsChunks(t *testing.T) {
	m := &fakeModel{chunks: []string{"Hel", "lo ", "world"}}
	h := newTestHandler(m)

	r := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"Hello"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); strings.Contains(ct, "application/json") {
		t.Errorf("expected a non-JSON content type, got %q", ct)
	}
	if w.Body.String() != "Hello world" {
		t.Errorf("expected %q, got %q", "Hello world", w.Body.String())
	}
	if !w.Flushed {
		t.Error("expected chunks to be flushed")
	}
	expected := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "Hello")}
	if diff := cmp.Diff(expected, m.messages); diff != "" {
		t.Errorf("unexpected messages: %v", diff)
	}
	if m.options.MaxTokens != 512 {
		t.Errorf("expected max tokens 512, got %d", m.options.MaxTokens)
	}
}

func TestHandlerValidation(t *testing.T) {
	for _, body := range []string{`{}`, `{"message":""}`, `{"message":"  "}`, `not json`} {
		t.Run(body, func(t *testing.T) {
			m := &fakeModel{chunks: []string{"unused"}}
			h := newTestHandler(m)

			r := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", w.Code)
			}
			if m.calls != 0 {
				t.Errorf("expected no model calls, got %d", m.calls)
			}
			var actual models.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &actual); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if actual.Error != MessageRequired {
				t.Errorf("expected %q, got %q", MessageRequired, actual.Error)
			}
		})
	}
}

func TestHandlerErrorBeforeFirstChunk(t *testing.T) {
	m := &fakeModel{err: errors.New("API returned unexpected status code: 401: invalid token")}
	h := newTestHandler(m)

	r := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"Hello"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "invalid token") {
		t.Errorf("provider error leaked to client: %s", w.Body.String())
	}
	var actual models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &actual); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if actual.Error != UpstreamFailed {
		t.Errorf("expected %q, got %q", UpstreamFailed, actual.Error)
	}
}

func TestHandlerErrorAfterFirstChunk(t *testing.T) {
	m := &fakeModel{chunks: []string{"Partial"}, err: errors.New("stream reset")}
	h := newTestHandler(m)

	r := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"Hello"}`))
	w := httptest.NewRecorder()
	defer func() {
		if p := recover(); p != http.ErrAbortHandler {
			t.Errorf("expected the response to be aborted, got %v", p)
		}
		if w.Body.String() != "Partial" {
			t.Errorf("expected only the streamed text, got %q", w.Body.String())
		}
	}()
	h.ServeHTTP(w, r)
}

func TestHandlerEmptyStream(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
	}{
		{
			name: "no chunks",
		},
		{
			name:   "only empty chunks",
			chunks: []string{"", ""},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newTestHandler(&fakeModel{chunks: test.chunks})

			r := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"Hello"}`))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			if w.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
				t.Errorf("expected text/plain, got %q", ct)
			}
			if w.Body.String() != FallbackReply {
				t.Errorf("expected %q, got %q", FallbackReply, w.Body.String())
			}
		})
	}
}
