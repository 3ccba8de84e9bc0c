package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/a-h/jsonapi"
	"github.com/nitin-chandra-28/InferFlow/models"
)

func New(baseURL string) Client {
	return Client{
		baseURL: baseURL,
	}
}

type Client struct {
	baseURL string
}

// Response is either Buffered or *Streaming, decided once from the response's
// content type.
type Response interface {
	response()
}

// Buffered is a complete JSON reply.
type Buffered struct {
	Reply models.ChatPostResponse
}

func (Buffered) response() {}

// Streaming is an open body delivering raw text chunks. The caller must Close it.
type Streaming struct {
	body      io.ReadCloser
	chunkSize int
}

func NewStreaming(body io.ReadCloser) *Streaming {
	return &Streaming{
		body:      body,
		chunkSize: 1024,
	}
}

func (*Streaming) response() {}

// Chunks yields each chunk as it is read, until the end of the stream. A read
// failure is yielded as the final error.
func (s *Streaming) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			chunk := make([]byte, s.chunkSize)
			n, err := s.body.Read(chunk)
			if n > 0 {
				if !yield(chunk[:n], nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("failed to read response body: %w", err))
				return
			}
		}
	}
}

func (s *Streaming) Close() error {
	return s.body.Close()
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "application/json")
}

func (c Client) ChatPost(ctx context.Context, request models.ChatPostRequest) (resp Response, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("chat").String()
	if err != nil {
		return nil, err
	}
	buf, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	res, err := jsonapi.Raw(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		defer res.Body.Close()
		body, _ := io.ReadAll(res.Body)
		return nil, jsonapi.InvalidStatusError{
			Status: res.StatusCode,
			Body:   string(body),
		}
	}
	if !isJSON(res.Header.Get("Content-Type")) {
		return NewStreaming(res.Body), nil
	}
	defer res.Body.Close()
	var reply models.ChatPostResponse
	if err = json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return Buffered{Reply: reply}, nil
}
