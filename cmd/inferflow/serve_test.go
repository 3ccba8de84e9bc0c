package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nitin-chandra-28/InferFlow/models"
)

func testServeCommand(providerURL string) ServeCommand {
	return ServeCommand{
		Port:          3001,
		ProviderURL:   providerURL,
		ProviderToken: "test-token",
		Model:         "test-model",
		MaxTokens:     512,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestServeHandler(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"Hi there"}}]}`))
	}))
	defer provider.Close()

	h, err := testServeCommand(provider.URL).handler(discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("chat requests are relayed to the provider", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"Hello"}`))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp models.ChatPostResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Reply != "Hi there" {
			t.Errorf("expected %q, got %q", "Hi there", resp.Reply)
		}
	})
	t.Run("only POST is allowed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/chat", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status 405, got %d", w.Code)
		}
	})
	t.Run("CORS preflight requests are allowed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/chat", nil)
		r.Header.Set("Origin", "https://example.com")
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
		r.Header.Set("Access-Control-Request-Headers", "Content-Type")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if origin := w.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
			t.Errorf("expected any origin to be allowed, got %q", origin)
		}
	})
}

func TestServeHandlerStream(t *testing.T) {
	c := testServeCommand("http://localhost:1")
	c.Stream = true
	h, err := c.handler(discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":""}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestServeHandlerStreamTimeout(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer provider.Close()

	c := testServeCommand(provider.URL)
	c.Stream = true
	c.ProviderTimeout = 200 * time.Millisecond
	h, err := c.handler(discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gateway := httptest.NewServer(h)
	defer gateway.Close()

	resp, err := http.Post(gateway.URL+"/chat", "application/json", strings.NewReader(`{"message":"Hello"}`))
	if err != nil {
		t.Fatalf("failed to post: %v", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err == nil {
		t.Errorf("expected the reply to be cut off, got complete body %q", string(b))
	}
	if string(b) != "Hel" {
		t.Errorf("expected the text streamed before the deadline, got %q", string(b))
	}
}

func TestServeHandlerConfigErrors(t *testing.T) {
	c := testServeCommand("http://localhost:1")
	c.MaxTokens = 0
	if _, err := c.handler(discardLogger()); err == nil {
		t.Error("expected error for non-positive max tokens")
	}
}

func TestListenAddr(t *testing.T) {
	tests := []struct {
		host     string
		port     int
		expected string
	}{
		{host: "", port: 3001, expected: ":3001"},
		{host: "localhost", port: 8080, expected: "localhost:8080"},
		{host: "::1", port: 80, expected: "[::1]:80"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			actual := ServeCommand{Host: tt.host, Port: tt.port}.ListenAddr()
			if actual != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, actual)
			}
		})
	}
}
