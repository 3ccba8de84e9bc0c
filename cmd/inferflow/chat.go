package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nitin-chandra-28/InferFlow/branding"
	"github.com/nitin-chandra-28/InferFlow/chat"
	"github.com/nitin-chandra-28/InferFlow/client"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

type ChatCommand struct {
	GatewayURL   string `help:"The URL of the chat gateway." env:"INFERFLOW_URL" default:"http://localhost:3001"`
	BrandingFile string `help:"A YAML file with the bot's name, brand and avatars." env:"BRANDING_FILE" default:""`
	StripEcho    bool   `help:"Remove the message from the start of the reply if the model repeats it." default:"true" negatable:""`
	Light        bool   `help:"Start with the light theme." default:"false"`
	LogLevel     string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
	LogFile      string `help:"Write logs to this file, the terminal is used by the UI." env:"LOG_FILE" default:""`
}

func (c ChatCommand) Run(ctx context.Context) (err error) {
	b, err := branding.Load(c.BrandingFile)
	if err != nil {
		return err
	}

	var w io.Writer = io.Discard
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		w = f
	}
	log := newLogger(w, c.LogLevel)

	surface := &programSurface{}
	session := chat.NewSession(log, client.New(c.GatewayURL), surface, chat.WithEchoStrip(c.StripEcho))

	theme := darkTheme
	if c.Light {
		theme = lightTheme
	}
	// Quitting cancels any request still in flight.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(b, theme, newSubmitter(ctx, log, session)))
	surface.p = p
	go session.Welcome(b.Welcome())
	if _, err = p.Run(); err != nil {
		return err
	}
	return nil
}

// newSubmitter returns a function that creates commands to send messages
// within ctx.
func newSubmitter(ctx context.Context, log *slog.Logger, session *chat.Session) func(text string) tea.Cmd {
	return func(text string) tea.Cmd {
		return func() tea.Msg {
			if _, err := session.Submit(ctx, text); err != nil {
				log.Warn("message not sent", slog.Any("error", err))
			}
			return nil
		}
	}
}

// programSurface forwards display updates to the bubbletea program.
type programSurface struct {
	p *tea.Program
}

type appendMsg chat.DisplayMessage

type replaceMsg chat.DisplayMessage

type lockMsg bool

func (s *programSurface) Append(msg chat.DisplayMessage) {
	s.p.Send(appendMsg(msg))
}

func (s *programSurface) Replace(msg chat.DisplayMessage) {
	s.p.Send(replaceMsg(msg))
}

func (s *programSurface) SetInputLocked(locked bool) {
	s.p.Send(lockMsg(locked))
}

type theme struct {
	name   string
	header lipgloss.Style
	user   lipgloss.Style
	bot    lipgloss.Style
	meta   lipgloss.Style
}

// Dracula color scheme.
var (
	Background  = lipgloss.Color("#282a36")
	CurrentLine = lipgloss.Color("#44475a")
	Comment     = lipgloss.Color("#6272a4")
	Cyan        = lipgloss.Color("#8be9fd")
	Pink        = lipgloss.Color("#ff79c6")
	Purple      = lipgloss.Color("#bd93f9")
)

// Alucard, Dracula's light variant.
var (
	LightBackground  = lipgloss.Color("#fffbeb")
	LightCurrentLine = lipgloss.Color("#cfcfde")
	LightComment     = lipgloss.Color("#6c664b")
	LightCyan        = lipgloss.Color("#036a96")
	LightPink        = lipgloss.Color("#a3144d")
	LightPurple      = lipgloss.Color("#644ac9")
)

var messageStyle = lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0)

var darkTheme = theme{
	name:   "dark",
	header: lipgloss.NewStyle().Background(CurrentLine).Foreground(Purple).Bold(true).Padding(0, 1),
	user:   messageStyle.Background(Background).Foreground(Pink),
	bot:    messageStyle.Background(Background).Foreground(Cyan),
	meta:   lipgloss.NewStyle().Foreground(Comment),
}

var lightTheme = theme{
	name:   "light",
	header: lipgloss.NewStyle().Background(LightCurrentLine).Foreground(LightPurple).Bold(true).Padding(0, 1),
	user:   messageStyle.Background(LightBackground).Foreground(LightPink),
	bot:    messageStyle.Background(LightBackground).Foreground(LightCyan),
	meta:   lipgloss.NewStyle().Foreground(LightComment),
}

func (t theme) toggle() theme {
	if t.name == darkTheme.name {
		return lightTheme
	}
	return darkTheme
}

type model struct {
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	branding branding.Config
	theme    theme
	width    int

	messages []chat.DisplayMessage
	locked   bool
	submit   func(text string) tea.Cmd
}

func newModel(b branding.Config, t theme, submit func(text string) tea.Cmd) model {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Focus()

	ta.Prompt = "┃ "
	ta.CharLimit = 2000

	ta.SetHeight(3)

	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()

	ta.ShowLineNumbers = false

	// Enter sends, so newlines aren't allowed.
	ta.KeyMap.InsertNewline.SetEnabled(false)

	vp := viewport.New(80, 20)

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	m := model{
		textarea: ta,
		viewport: vp,
		spinner:  sp,
		branding: b,
		theme:    t,
		width:    80,
		submit:   submit,
	}
	m.viewport.SetContent(m.renderMessages())
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
	)
}

func (m model) header() string {
	return m.theme.header.Render(strings.TrimSpace(m.branding.Bot.Avatar + " " + m.branding.Bot.Brand))
}

func (m model) formatMessage(msg chat.DisplayMessage) string {
	style, persona := m.theme.bot, m.branding.Bot.Persona
	if msg.Role == chat.RoleUser {
		style, persona = m.theme.user, m.branding.User
	}
	icon := persona.Avatar
	if icon == "" {
		icon = persona.Name
	}
	text := msg.Text
	if msg.Typing {
		text = m.spinner.View()
	}
	wrapped := wordwrap.String(strings.TrimSpace(icon+" "+text), max(m.width-6, 20))
	return style.Render(wrapped + "\n" + m.theme.meta.Render(msg.Timestamp))
}

func (m model) renderMessages() string {
	var sb strings.Builder
	sb.WriteString(m.header())
	sb.WriteString("\n")
	for _, msg := range m.messages {
		sb.WriteString(m.formatMessage(msg))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m model) typing() bool {
	for _, msg := range m.messages {
		if msg.Typing {
			return true
		}
	}
	return false
}

func (m *model) refresh() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case appendMsg:
		m.messages = append(m.messages, chat.DisplayMessage(msg))
		m.refresh()
		return m, nil
	case replaceMsg:
		for i := range m.messages {
			if m.messages[i].ID == msg.ID {
				m.messages[i] = chat.DisplayMessage(msg)
			}
		}
		m.refresh()
		return m, nil
	case lockMsg:
		m.locked = bool(msg)
		if m.locked {
			m.textarea.Blur()
			return m, nil
		}
		return m, m.textarea.Focus()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.typing() {
			m.refresh()
		}
		return m, cmd
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - m.textarea.Height() - 3
		m.textarea.SetWidth(msg.Width)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			return m, tea.Quit
		case "ctrl+t":
			m.theme = m.theme.toggle()
			m.refresh()
			return m, nil
		case "enter":
			v := strings.TrimSpace(m.textarea.Value())
			if v == "" || m.locked {
				// Don't send empty messages, or a second message while waiting.
				return m, nil
			}
			m.textarea.Reset()
			m.locked = true
			return m, m.submit(v)
		default:
			// Send all other keypresses to the textarea.
			var cmd tea.Cmd
			m.textarea, cmd = m.textarea.Update(msg)
			return m, cmd
		}

	case cursor.BlinkMsg:
		// Textarea should also process cursor blinks.
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		return m, cmd

	default:
		return m, nil
	}
}

func (m model) View() string {
	return fmt.Sprintf("%s\n\n%s",
		m.viewport.View(),
		m.textarea.View(),
	) + "\n\n"
}
