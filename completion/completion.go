package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/jsonapi"
)

const RoleUser = "user"

// Token is a bearer credential. It redacts itself when printed or logged.
type Token string

func (t Token) String() string {
	if t == "" {
		return ""
	}
	return "[redacted]"
}

func (t Token) LogValue() slog.Value {
	return slog.StringValue(t.String())
}

// Config is loaded once at startup and is read-only thereafter.
type Config struct {
	// BaseURL of an OpenAI compatible API, e.g. https://router.huggingface.co/v1
	BaseURL string
	Token   Token
	// Timeout bounds a single completion call. Zero means no deadline.
	Timeout time.Duration
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type Response struct {
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Message ResponseMessage `json:"message"`
}

type ResponseMessage struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// Content returns the text of the first choice. ok is false if the provider
// didn't return any content.
func (r Response) Content() (content string, ok bool) {
	if len(r.Choices) == 0 || r.Choices[0].Message.Content == nil {
		return "", false
	}
	content = *r.Choices[0].Message.Content
	return content, content != ""
}

// UpstreamError is returned when the provider can't be reached, responds
// with a non-success status, or returns a body that can't be decoded.
// Body holds the provider's payload and must only be logged.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e UpstreamError) Error() string {
	msg := fmt.Sprintf("provider request failed: %v", e.Err)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e UpstreamError) Unwrap() error {
	return e.Err
}

func New(config Config) Client {
	return Client{
		config: config,
	}
}

type Client struct {
	config Config
}

func (c Client) Complete(ctx context.Context, req Request) (resp Response, err error) {
	url, err := jsonapi.URL(c.config.BaseURL).Path("chat", "completions").String()
	if err != nil {
		return resp, fmt.Errorf("failed to create provider URL: %w", err)
	}
	buf, err := json.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("failed to marshal request: %w", err)
	}
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return resp, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	res, err := jsonapi.Raw(httpReq, jsonapi.WithRequestHeader("Authorization", "Bearer "+string(c.config.Token)))
	if err != nil {
		return resp, UpstreamError{Err: fmt.Errorf("failed to perform HTTP request: %w", err)}
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return resp, UpstreamError{StatusCode: res.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return resp, UpstreamError{
			StatusCode: res.StatusCode,
			Body:       string(body),
			Err:        errors.New(http.StatusText(res.StatusCode)),
		}
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return resp, UpstreamError{StatusCode: res.StatusCode, Body: string(body), Err: fmt.Errorf("failed to decode response body: %w", err)}
	}
	return resp, nil
}
