// Package tui is the terminal client: one conversation with the back-office
// agents rendered with Bubble Tea.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/inmobiliaria/gestion-chat/internal/agentapi"
	"github.com/inmobiliaria/gestion-chat/internal/chat"
	"github.com/inmobiliaria/gestion-chat/internal/middleware"
)

const sessionChipLen = 8

// sendDoneMsg carries the result of a dispatcher Send run off the UI loop.
type sendDoneMsg struct {
	ex *chat.Exchange
}

// Model is the Bubble Tea model of the chat client.
type Model struct {
	ctx        context.Context
	dispatcher *chat.Dispatcher
	user       string

	input      textinput.Model
	transcript viewport.Model
	spinner    spinner.Model
	theme      theme

	width    int
	height   int
	inflight bool
	unauth   bool
}

// New creates the model. user is shown in the header.
func New(ctx context.Context, d *chat.Dispatcher, user string) Model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = middleware.MaxMessageLength
	input.Placeholder = "Escribe un mensaje para el agente..."
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#2dd4bf"))

	transcript := viewport.New(80, 20)
	transcript.MouseWheelEnabled = true

	return Model{
		ctx:        ctx,
		dispatcher: d,
		user:       user,
		input:      input,
		transcript: transcript,
		spinner:    sp,
		theme:      newTheme(),
	}
}

// Unauthenticated reports whether the program ended because the backend
// rejected the stored credential.
func (m Model) Unauthenticated() bool {
	return m.unauth
}

// Init starts the cursor blink and the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update handles input and send completions.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case sendDoneMsg:
		m.inflight = false
		if msg.ex != nil && errors.Is(msg.ex.Err, agentapi.ErrUnauthenticated) {
			m.unauth = true
			return m, tea.Quit
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			cmd := m.submit()
			m.render()
			return m, cmd
		case "tab":
			if m.busy() {
				return m, nil
			}
			next := m.dispatcher.ActiveAgent().Next()
			_ = m.dispatcher.ChangeAgent(m.ctx, next)
			m.render()
			return m, nil
		case "ctrl+r":
			if m.busy() {
				return m, nil
			}
			m.dispatcher.Reset(m.ctx)
			m.render()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.transcript, cmd = m.transcript.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.render()
	return m, tea.Batch(cmds...)
}

// busy reports whether a send is outstanding. Nothing else changes the
// conversation until it completes.
func (m Model) busy() bool {
	return m.inflight || m.dispatcher.Pending()
}

// submit starts a send unless one is already pending. The input is kept
// when the send is refused.
func (m *Model) submit() tea.Cmd {
	if m.busy() {
		return nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.input.Reset()
	m.inflight = true

	ctx, d := m.ctx, m.dispatcher
	return func() tea.Msg {
		return sendDoneMsg{ex: d.Send(ctx, text)}
	}
}

func (m *Model) resize() {
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	// header, agent line, banner, input box and help
	h := m.height - 9
	if h < 3 {
		h = 3
	}
	m.transcript.Width = w
	m.transcript.Height = h
	m.input.Width = w - 4
}

func (m *Model) render() {
	st := m.dispatcher.State()
	m.transcript.SetContent(m.renderTranscript(st))
	m.transcript.GotoBottom()
}

func (m Model) renderTranscript(st chat.State) string {
	width := m.transcript.Width
	if width <= 0 {
		width = 80
	}
	body := lipgloss.NewStyle().Width(width - 2)

	if len(st.Transcript) == 0 {
		return m.theme.helpText.Render(st.ActiveAgent.Description())
	}

	var b strings.Builder
	for i, e := range st.Transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		label := "Tú"
		if e.AuthoredBy == chat.AuthorAgent {
			label = st.ActiveAgent.DisplayName()
			if e.Failed() {
				label += " (error)"
			}
		}
		b.WriteString(m.theme.authorStyle(e).Render(label))
		b.WriteString("\n")
		b.WriteString(body.Render(e.Text))
	}
	return b.String()
}

// View renders the screen.
func (m Model) View() string {
	st := m.dispatcher.State()

	sections := []string{
		m.renderHeader(st),
		m.theme.agentDesc.Render(st.ActiveAgent.Description()),
		m.theme.panel.Render(m.transcript.View()),
	}
	if msg := st.Err(); msg != "" {
		sections = append(sections, m.theme.banner.Render("⚠ "+msg))
	}

	prompt := m.input.View()
	if st.Pending || m.inflight {
		prompt = m.spinner.View() + " esperando respuesta..."
	}
	sections = append(sections,
		m.theme.inputPanel.Render(prompt),
		m.theme.helpText.Render("enter enviar · tab cambiar agente · ctrl+r reiniciar · esc salir"),
	)

	return m.theme.root.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) renderHeader(st chat.State) string {
	tabs := make([]string, 0, len(chat.AgentKinds()))
	for _, kind := range chat.AgentKinds() {
		style := m.theme.tabInactive
		if kind == st.ActiveAgent {
			style = m.theme.tabActive
		}
		tabs = append(tabs, style.Render(kind.DisplayName()))
	}

	chip := m.theme.chipEmpty.Render("sin sesión")
	if st.HasSession() {
		chip = m.theme.chip.Render("sesión " + SessionChip(st.Session()))
	}

	left := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	right := chip
	if m.user != "" {
		right = m.theme.helpText.Render(m.user) + "  " + chip
	}
	gap := m.width - 2 - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 2 {
		gap = 2
	}
	return m.theme.header.Render(left + strings.Repeat(" ", gap) + right)
}

// SessionChip shortens a session id for display.
func SessionChip(id string) string {
	r := []rune(id)
	if len(r) > sessionChipLen {
		return string(r[:sessionChipLen])
	}
	return id
}
