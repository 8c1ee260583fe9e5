package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func typeInto(f LoginForm, text string) LoginForm {
	for _, r := range text {
		next, _ := f.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		f = next.(LoginForm)
	}
	return f
}

func pressLogin(f LoginForm, k tea.KeyType) (LoginForm, tea.Cmd) {
	next, cmd := f.Update(tea.KeyMsg{Type: k})
	return next.(LoginForm), cmd
}

func TestLoginFormMasksPassword(t *testing.T) {
	t.Parallel()

	f := NewLoginForm("", "")
	f = typeInto(f, "admin@test.com")
	f, _ = pressLogin(f, tea.KeyEnter)
	if f.Submitted() || f.focus != fieldPassword {
		t.Fatalf("enter on email: submitted=%v focus=%d", f.Submitted(), f.focus)
	}

	f = typeInto(f, "admin123")
	if view := f.View(); strings.Contains(view, "admin123") {
		t.Fatalf("password shown in clear:\n%s", view)
	}

	f, cmd := pressLogin(f, tea.KeyEnter)
	if !f.Submitted() || cmd == nil {
		t.Fatal("form not submitted")
	}
	email, password := f.Credentials()
	if email != "admin@test.com" || password != "admin123" {
		t.Fatalf("credentials = %q, %q", email, password)
	}
}

func TestLoginFormPrefilledEmailAndNotice(t *testing.T) {
	t.Parallel()

	f := NewLoginForm("ana@inmo.test", "Credenciales inválidas.")
	if f.focus != fieldPassword {
		t.Fatalf("focus = %d, want password", f.focus)
	}
	if !strings.Contains(f.View(), "Credenciales inválidas.") {
		t.Fatal("notice not rendered")
	}

	f, _ = pressLogin(f, tea.KeyEnter)
	if f.Submitted() {
		t.Fatal("submitted without a password")
	}

	f, _ = pressLogin(f, tea.KeyEsc)
	if !f.Aborted() || f.Submitted() {
		t.Fatal("esc did not abort")
	}
}
