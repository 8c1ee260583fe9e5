package tui

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/inmobiliaria/gestion-chat/internal/agentapi"
	"github.com/inmobiliaria/gestion-chat/internal/chat"
)

func okTransport(calls *atomic.Int32) chat.Transport {
	return chat.TransportFunc(func(ctx context.Context, endpoint string, req chat.Request) (*chat.Response, error) {
		calls.Add(1)
		sid := "user-0123456789"
		return &chat.Response{Response: "hola", SessionID: &sid, Success: true}, nil
	})
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func press(m Model, k tea.KeyType) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(Model), cmd
}

func TestEnterIsGatedWhileSending(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	d := chat.NewDispatcher(okTransport(&calls), chat.DefaultAgent)
	m := New(context.Background(), d, "admin@test.com")

	m = typeText(t, m, "listar")
	m, first := press(m, tea.KeyEnter)
	if first == nil || !m.inflight || m.input.Value() != "" {
		t.Fatalf("first enter: cmd=%v inflight=%v input=%q", first != nil, m.inflight, m.input.Value())
	}

	m = typeText(t, m, "otra")
	m, _ = press(m, tea.KeyEnter)
	if m.input.Value() != "otra" {
		t.Fatalf("input cleared while a send was in flight: %q", m.input.Value())
	}

	msg := first()
	if calls.Load() != 1 {
		t.Fatalf("transport calls = %d, want 1", calls.Load())
	}
	next, _ := m.Update(msg)
	m = next.(Model)
	if m.inflight {
		t.Fatal("inflight not cleared after completion")
	}

	st := d.State()
	if len(st.Transcript) != 2 || st.Session() != "user-0123456789" {
		t.Fatalf("state = %+v", st)
	}
}

func TestBlankInputDoesNotSend(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	m := New(context.Background(), chat.NewDispatcher(okTransport(&calls), chat.DefaultAgent), "")
	m = typeText(t, m, "   ")
	m, cmd := press(m, tea.KeyEnter)
	if cmd != nil || m.inflight {
		t.Fatal("blank input started a send")
	}
}

func TestTabCyclesAgentAndCtrlRResets(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	d := chat.NewDispatcher(okTransport(&calls), chat.DefaultAgent)
	m := New(context.Background(), d, "")

	d.Send(context.Background(), "hola")
	m, _ = press(m, tea.KeyTab)
	if d.ActiveAgent() != chat.DefaultAgent.Next() {
		t.Fatalf("agent = %s", d.ActiveAgent())
	}
	if st := d.State(); len(st.Transcript) != 0 || st.HasSession() {
		t.Fatalf("agent change kept conversation: %+v", st)
	}

	d.Send(context.Background(), "hola")
	m, _ = press(m, tea.KeyCtrlR)
	if st := d.State(); len(st.Transcript) != 0 || st.ActiveAgent != chat.DefaultAgent.Next() {
		t.Fatalf("reset state = %+v", st)
	}
	_ = m
}

func TestAgentChangeAndResetWaitForSend(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	d := chat.NewDispatcher(okTransport(&calls), chat.DefaultAgent)
	m := New(context.Background(), d, "")

	m = typeText(t, m, "listar")
	m, send := press(m, tea.KeyEnter)
	if send == nil {
		t.Fatal("enter did not start a send")
	}

	m, _ = press(m, tea.KeyTab)
	m, _ = press(m, tea.KeyCtrlR)
	if d.ActiveAgent() != chat.DefaultAgent {
		t.Fatalf("agent changed during send: %s", d.ActiveAgent())
	}

	next, _ := m.Update(send())
	m = next.(Model)
	if st := d.State(); len(st.Transcript) != 2 || !st.HasSession() {
		t.Fatalf("reply lost: %+v", st)
	}

	m, _ = press(m, tea.KeyTab)
	if d.ActiveAgent() != chat.DefaultAgent.Next() {
		t.Fatalf("agent = %s after send completed", d.ActiveAgent())
	}
}

func TestUnauthenticatedQuits(t *testing.T) {
	t.Parallel()
	tr := chat.TransportFunc(func(ctx context.Context, endpoint string, req chat.Request) (*chat.Response, error) {
		return nil, &agentapi.APIError{StatusCode: 401}
	})
	m := New(context.Background(), chat.NewDispatcher(tr, chat.DefaultAgent), "")
	m = typeText(t, m, "hola")
	m, cmd := press(m, tea.KeyEnter)

	next, quit := m.Update(cmd())
	m = next.(Model)
	if !m.Unauthenticated() {
		t.Fatal("Unauthenticated() = false")
	}
	if _, ok := quit().(tea.QuitMsg); !ok {
		t.Fatal("expected quit command")
	}
}

func TestViewShowsChipAndBanner(t *testing.T) {
	t.Parallel()
	tr := chat.TransportFunc(func(ctx context.Context, endpoint string, req chat.Request) (*chat.Response, error) {
		sid := "abcdef123456"
		msg := "Agencia no encontrada"
		return &chat.Response{SessionID: &sid, Success: false, Error: &msg}, nil
	})
	d := chat.NewDispatcher(tr, chat.DefaultAgent)
	d.Send(context.Background(), "buscar 9")
	m := New(context.Background(), d, "")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	view := next.(Model).View()

	for _, want := range []string{"abcdef12", "Agencia no encontrada"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "abcdef123") {
		t.Fatal("session chip longer than 8 characters")
	}
}

func TestSessionChip(t *testing.T) {
	t.Parallel()
	if got := SessionChip("user-1234-5678"); got != "user-123" {
		t.Fatalf("SessionChip = %q", got)
	}
	if got := SessionChip("abc"); got != "abc" {
		t.Fatalf("SessionChip = %q", got)
	}
}
