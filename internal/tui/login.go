package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	fieldEmail = iota
	fieldPassword
)

// LoginForm asks for the back-office credentials. The password is masked.
type LoginForm struct {
	fields  [2]textinput.Model
	focus   int
	notice  string
	theme   theme
	done    bool
	aborted bool
}

// NewLoginForm creates the form with email prefilled. notice is shown above
// the fields, for example after a rejected attempt.
func NewLoginForm(email, notice string) LoginForm {
	e := textinput.New()
	e.Prompt = "Email:      "
	e.Placeholder = "admin@inmobiliaria.mx"
	e.SetValue(email)

	p := textinput.New()
	p.Prompt = "Contraseña: "
	p.EchoMode = textinput.EchoPassword
	p.EchoCharacter = '•'

	f := LoginForm{fields: [2]textinput.Model{e, p}, notice: notice, theme: newTheme()}
	if strings.TrimSpace(email) != "" {
		f.focus = fieldPassword
	}
	f.fields[f.focus].Focus()
	return f
}

// Credentials returns the entered email and password.
func (f LoginForm) Credentials() (string, string) {
	return strings.TrimSpace(f.fields[fieldEmail].Value()), f.fields[fieldPassword].Value()
}

// Submitted reports whether the user confirmed both fields.
func (f LoginForm) Submitted() bool {
	return f.done
}

// Aborted reports whether the user left without logging in.
func (f LoginForm) Aborted() bool {
	return f.aborted
}

// Init starts the cursor blink.
func (f LoginForm) Init() tea.Cmd {
	return textinput.Blink
}

// Update moves between the fields and submits on enter.
func (f LoginForm) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			f.aborted = true
			return f, tea.Quit
		case "tab", "shift+tab", "up", "down":
			return f, f.setFocus(1 - f.focus)
		case "enter":
			email, password := f.Credentials()
			switch {
			case email == "":
				return f, f.setFocus(fieldEmail)
			case password == "":
				return f, f.setFocus(fieldPassword)
			}
			f.done = true
			return f, tea.Quit
		}
	}

	var cmd tea.Cmd
	f.fields[f.focus], cmd = f.fields[f.focus].Update(msg)
	return f, cmd
}

func (f *LoginForm) setFocus(i int) tea.Cmd {
	f.fields[f.focus].Blur()
	f.focus = i
	return f.fields[i].Focus()
}

// View renders the form.
func (f LoginForm) View() string {
	sections := []string{f.theme.header.Render("Gestión inmobiliaria · iniciar sesión")}
	if f.notice != "" {
		sections = append(sections, f.theme.banner.Render(f.notice))
	}
	sections = append(sections,
		f.theme.inputPanel.Render(f.fields[fieldEmail].View()+"\n"+f.fields[fieldPassword].View()),
		f.theme.helpText.Render("tab cambiar campo · enter entrar · esc salir"),
	)
	return f.theme.root.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}
