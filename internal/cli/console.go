package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/avarcorg/chatops-bot/internal/channel"
	"github.com/avarcorg/chatops-bot/internal/dispatch"
	"github.com/avarcorg/chatops-bot/internal/router"
)

const (
	consoleChannelID = "console"
	consoleUserID    = "console-user"
	consoleBotID     = "console-bot"
)

// --- message types ---

type repliesMsg struct {
	replies []string
	restart bool
	err     error
}

// --- offline transport ---

// capturePoster collects the posts the dispatcher would have sent.
type capturePoster struct {
	mu    sync.Mutex
	posts []string
}

func (p *capturePoster) CreatePost(_ context.Context, channelID, message string) (*channel.Post, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, message)
	return &channel.Post{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		UserID:    consoleBotID,
		Message:   message,
		CreatedAt: time.Now(),
	}, nil
}

func (p *capturePoster) drain() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.posts
	p.posts = nil
	return out
}

// Rehearsal runs messages through the same dispatcher the live bot uses,
// without a server.
type Rehearsal struct {
	name       string
	poster     *capturePoster
	dispatcher *dispatch.Dispatcher
}

// NewRehearsal creates an offline dispatcher answering to name.
func NewRehearsal(name string) *Rehearsal {
	r := router.New(name)
	poster := &capturePoster{}
	return &Rehearsal{
		name:   r.Name(),
		poster: poster,
		dispatcher: dispatch.New(dispatch.Config{
			Poster:    poster,
			Router:    r,
			BotUserID: consoleBotID,
			Logger:    slog.New(slog.DiscardHandler),
		}),
	}
}

// Name returns the mention name the rehearsal answers to.
func (r *Rehearsal) Name() string { return r.name }

// Send dispatches one message and returns the replies the bot would post.
// restart reports whether the message asked the bot to restart itself.
func (r *Rehearsal) Send(ctx context.Context, message string) (replies []string, restart bool, err error) {
	err = r.dispatcher.Dispatch(ctx, channel.Post{
		ID:        uuid.NewString(),
		ChannelID: consoleChannelID,
		UserID:    consoleUserID,
		Message:   message,
		CreatedAt: time.Now(),
	})
	if errors.Is(err, dispatch.ErrRestartRequested) {
		restart, err = true, nil
	}
	return r.poster.drain(), restart, err
}

// --- console entry ---

type consoleEntry struct {
	role    string // "user", "bot", "note", "error"
	content string
}

// --- interactive console model ---

type consoleModel struct {
	input    textinput.Model
	viewport viewport.Model

	history   []consoleEntry
	rehearsal *Rehearsal
	ctx       context.Context

	ready  bool
	width  int
	height int
}

func newConsoleModel(ctx context.Context, r *Rehearsal) consoleModel {
	ti := textinput.New()
	ti.Placeholder = fmt.Sprintf("Try \"@%s help\"...", r.Name())
	ti.Focus()
	ti.CharLimit = 0
	ti.Prompt = "❯ "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(Accent)

	return consoleModel{
		input:     ti,
		rehearsal: r,
		ctx:       ctx,
	}
}

func (m consoleModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// header, divider, divider, input, status
		vpHeight := msg.Height - 5
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.input.Width = msg.Width - 4
		m.viewport.SetContent(m.renderHistory())
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			input := strings.TrimSpace(m.input.Value())
			if input == "" {
				return m, nil
			}
			if isExitCmd(input) {
				return m, tea.Quit
			}
			m.history = append(m.history, consoleEntry{role: "user", content: input})
			m.input.SetValue("")
			m.viewport.SetContent(m.renderHistory())
			m.viewport.GotoBottom()
			return m, m.send(input)
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case repliesMsg:
		m.history = append(m.history, historyFor(msg)...)
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m consoleModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	header := TitleStyle.Render(fmt.Sprintf(" %s %s console", Logo, AppName))
	divider := DimStyle.Render(strings.Repeat("─", m.width))

	return header + "\n" +
		divider + "\n" +
		m.viewport.View() + "\n" +
		divider + "\n" +
		" " + m.input.View() + "\n" +
		m.renderStatusBar()
}

func (m consoleModel) send(input string) tea.Cmd {
	return func() tea.Msg {
		replies, restart, err := m.rehearsal.Send(m.ctx, input)
		return repliesMsg{replies: replies, restart: restart, err: err}
	}
}

// historyFor converts a dispatch result into console entries.
func historyFor(msg repliesMsg) []consoleEntry {
	var out []consoleEntry
	if msg.err != nil {
		return append(out, consoleEntry{role: "error", content: msg.err.Error()})
	}
	for _, r := range msg.replies {
		out = append(out, consoleEntry{role: "bot", content: r})
	}
	if msg.restart {
		out = append(out, consoleEntry{role: "note", content: "restart requested; a live bot would exit now"})
	}
	if len(out) == 0 {
		out = append(out, consoleEntry{role: "note", content: "no reply"})
	}
	return out
}

func (m consoleModel) renderHistory() string {
	if len(m.history) == 0 {
		return m.renderWelcome()
	}

	var sb strings.Builder
	for _, entry := range m.history {
		switch entry.role {
		case "user":
			sb.WriteString("\n  " + UserLabel.Render("You") + "\n")
			for _, line := range strings.Split(entry.content, "\n") {
				sb.WriteString("  " + line + "\n")
			}
		case "bot":
			sb.WriteString("\n  " + BotLabel.Render(m.rehearsal.Name()) + "\n")
			for _, line := range strings.Split(entry.content, "\n") {
				sb.WriteString("  " + line + "\n")
			}
		case "note":
			sb.WriteString("  " + WarnStyle.Render("("+entry.content+")") + "\n")
		case "error":
			sb.WriteString("  " + ErrStyle.Render("Error: "+entry.content) + "\n")
		}
	}
	return sb.String()
}

func (m consoleModel) renderWelcome() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(Title("console") + "\n\n")
	sb.WriteString("  " + BoldStyle.Render("Messages are routed offline, nothing is posted.") + "\n")
	sb.WriteString(DimStyle.Render(fmt.Sprintf("  1. @%s hello", m.rehearsal.Name())) + "\n")
	sb.WriteString(DimStyle.Render(fmt.Sprintf("  2. @%s help", m.rehearsal.Name())) + "\n")
	sb.WriteString(DimStyle.Render(fmt.Sprintf("  3. @%s restart yourself", m.rehearsal.Name())) + "\n")
	sb.WriteString(DimStyle.Render("  Type exit or press Ctrl+C to quit") + "\n")
	return sb.String()
}

func (m consoleModel) renderStatusBar() string {
	left := DimStyle.Render(" offline")
	right := DimStyle.Render("@" + m.rehearsal.Name() + " ")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func isExitCmd(s string) bool {
	s = strings.ToLower(s)
	return s == "exit" || s == "quit" || s == "/exit" || s == "/quit" || s == ":q"
}

// RunConsole starts the interactive console TUI.
func RunConsole(ctx context.Context, name string) error {
	m := newConsoleModel(ctx, NewRehearsal(name))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
