package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nitin-chandra-28/InferFlow/chat"
	"github.com/nitin-chandra-28/InferFlow/client"
)

type SendCommand struct {
	GatewayURL string `help:"The URL of the chat gateway." env:"INFERFLOW_URL" default:"http://localhost:3001"`
	StripEcho  bool   `help:"Remove the message from the start of the reply if the model repeats it." default:"true" negatable:""`
	LogLevel   string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
	Message    string `arg:"" help:"The message to send."`
}

var errReplyFailed = errors.New("failed to get a reply")

func (c SendCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)
	surface := newWriterSurface(os.Stdout)
	session := chat.NewSession(log, client.New(c.GatewayURL), surface, chat.WithEchoStrip(c.StripEcho))
	state, err := session.Submit(ctx, c.Message)
	if err != nil {
		return err
	}
	if surface.err != nil {
		return fmt.Errorf("failed to write reply: %w", surface.err)
	}
	if state == chat.StateFailed {
		return errReplyFailed
	}
	return nil
}

func newWriterSurface(w io.Writer) *writerSurface {
	return &writerSurface{
		w: w,
	}
}

// writerSurface prints the bot's reply as it grows. Only the new text of each
// update is written, unless the text was replaced rather than extended.
// The first write error is kept, and later writes are skipped.
type writerSurface struct {
	w       io.Writer
	replyID int
	printed string
	err     error
}

func (s *writerSurface) write(text string) {
	if s.err != nil {
		return
	}
	_, s.err = io.WriteString(s.w, text)
}

func (s *writerSurface) Append(msg chat.DisplayMessage) {
	if msg.Role != chat.RoleBot {
		return
	}
	s.replyID = msg.ID
	s.printed = ""
	if msg.Text != "" {
		s.Replace(msg)
	}
}

func (s *writerSurface) Replace(msg chat.DisplayMessage) {
	if msg.ID != s.replyID {
		return
	}
	if strings.HasPrefix(msg.Text, s.printed) {
		s.write(msg.Text[len(s.printed):])
	} else {
		s.write("\n" + msg.Text)
	}
	s.printed = msg.Text
}

func (s *writerSurface) SetInputLocked(locked bool) {
	if !locked && s.printed != "" {
		s.write("\n")
	}
}
