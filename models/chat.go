package models

import (
	"errors"
	"strings"
)

// Texts returned to chat clients. Provider details never reach the client.
const (
	MessageRequired = "Message is required"
	UpstreamFailed  = "Failed to get response from AI model"
	FallbackReply   = "Sorry, I couldn't get a response."
)

type ChatPostRequest struct {
	Message string `json:"message"`
}

var ErrMessageRequired = errors.New("message is required")

// Validate returns ErrMessageRequired if the message is missing or only
// whitespace.
func (r ChatPostRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrMessageRequired
	}
	return nil
}

type ChatPostResponse struct {
	Reply string `json:"reply"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
