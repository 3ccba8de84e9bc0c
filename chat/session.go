package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nitin-chandra-28/InferFlow/client"
	"github.com/nitin-chandra-28/InferFlow/models"
)

const Apology = "Sorry, something went wrong."

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// DisplayMessage is a single message on the display surface. The bot's reply
// is updated in place (same ID) while it is being received.
type DisplayMessage struct {
	ID        int
	Role      Role
	Text      string
	Timestamp string
	// Typing is set on the placeholder until the first text arrives.
	Typing bool
}

type State int

const (
	StateIdle State = iota
	StateSent
	StateAwaiting
	StateRendered
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSent:
		return "sent"
	case StateAwaiting:
		return "awaiting"
	case StateRendered:
		return "rendered"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Surface displays messages. Append adds a new message, Replace updates the
// message with the same ID.
type Surface interface {
	Append(msg DisplayMessage)
	Replace(msg DisplayMessage)
	// SetInputLocked disables the send control while locked, and restores
	// input focus when unlocked.
	SetInputLocked(locked bool)
}

type Sender interface {
	ChatPost(ctx context.Context, request models.ChatPostRequest) (client.Response, error)
}

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a message is already being sent")
)

type Option func(*Session)

// WithEchoStrip sets whether a reply that repeats the user's message as a
// prefix has it removed. Enabled by default.
func WithEchoStrip(enabled bool) Option {
	return func(s *Session) {
		s.stripEcho = enabled
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithStateObserver is called on every state transition.
func WithStateObserver(f func(State)) Option {
	return func(s *Session) {
		s.observe = f
	}
}

func NewSession(log *slog.Logger, sender Sender, surface Surface, opts ...Option) *Session {
	s := &Session{
		log:       log,
		sender:    sender,
		surface:   surface,
		stripEcho: true,
		now:       time.Now,
		observe:   func(State) {},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Session sends one message at a time to the gateway and renders the
// exchange on a Surface.
type Session struct {
	log       *slog.Logger
	sender    Sender
	surface   Surface
	stripEcho bool
	now       func() time.Time
	observe   func(State)

	m      sync.Mutex
	state  State
	nextID int
}

func (s *Session) State() State {
	s.m.Lock()
	defer s.m.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.m.Lock()
	s.state = state
	s.m.Unlock()
	s.observe(state)
}

func (s *Session) newMessage(role Role, text string) DisplayMessage {
	s.m.Lock()
	defer s.m.Unlock()
	s.nextID++
	return DisplayMessage{
		ID:        s.nextID,
		Role:      role,
		Text:      text,
		Timestamp: s.timestamp(),
	}
}

func (s *Session) timestamp() string {
	return s.now().Format("15:04")
}

// Welcome shows a bot message that isn't a reply to anything.
func (s *Session) Welcome(text string) {
	s.surface.Append(s.newMessage(RoleBot, text))
}

// Submit sends text and renders the user's message followed by the reply,
// or an apology if the reply can't be received. It returns the terminal
// state of the exchange, StateRendered or StateFailed. Transport failures
// are rendered, not returned; the error is only set if nothing was sent.
func (s *Session) Submit(ctx context.Context, text string) (State, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return StateIdle, ErrEmptyMessage
	}
	s.m.Lock()
	if s.state != StateIdle {
		s.m.Unlock()
		return s.State(), ErrBusy
	}
	s.state = StateSent
	s.m.Unlock()
	s.observe(StateSent)

	s.surface.SetInputLocked(true)
	defer func() {
		s.setState(StateIdle)
		s.surface.SetInputLocked(false)
	}()

	s.surface.Append(s.newMessage(RoleUser, text))
	placeholder := s.newMessage(RoleBot, "")
	placeholder.Typing = true
	s.surface.Append(placeholder)
	s.setState(StateAwaiting)

	if err := s.receive(ctx, text, placeholder); err != nil {
		s.log.Error("failed to receive reply", slog.Any("error", err))
		placeholder.Text = Apology
		placeholder.Typing = false
		placeholder.Timestamp = s.timestamp()
		s.surface.Replace(placeholder)
		s.setState(StateFailed)
		return StateFailed, nil
	}
	s.setState(StateRendered)
	return StateRendered, nil
}

func (s *Session) receive(ctx context.Context, text string, placeholder DisplayMessage) (err error) {
	resp, err := s.sender.ChatPost(ctx, models.ChatPostRequest{Message: text})
	if err != nil {
		return err
	}
	switch resp := resp.(type) {
	case client.Buffered:
		reply := resp.Reply.Reply
		if s.stripEcho {
			reply = StripEcho(reply, text)
		}
		s.render(placeholder, reply)
		return nil
	case *client.Streaming:
		defer resp.Close()
		return s.receiveStream(ctx, resp, placeholder)
	default:
		return fmt.Errorf("unexpected response type %T", resp)
	}
}

func (s *Session) receiveStream(ctx context.Context, stream *client.Streaming, placeholder DisplayMessage) error {
	var dec Decoder
	var sb strings.Builder
	var rendered bool
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			return err
		}
		text := dec.Decode(chunk)
		if text == "" {
			continue
		}
		sb.WriteString(text)
		s.render(placeholder, sb.String())
		rendered = true
	}
	if tail := dec.Flush(); tail != "" {
		sb.WriteString(tail)
		s.render(placeholder, sb.String())
		rendered = true
	}
	if !rendered {
		s.render(placeholder, "")
	}
	return nil
}

func (s *Session) render(placeholder DisplayMessage, text string) {
	placeholder.Text = text
	placeholder.Typing = false
	placeholder.Timestamp = s.timestamp()
	s.surface.Replace(placeholder)
}

// StripEcho removes prompt from the start of reply, for models that restate
// the prompt before answering.
func StripEcho(reply, prompt string) string {
	if prompt == "" {
		return strings.TrimSpace(reply)
	}
	return strings.TrimSpace(strings.TrimPrefix(reply, prompt))
}
