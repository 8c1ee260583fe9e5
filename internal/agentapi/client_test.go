package agentapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inmobiliaria/gestion-chat/internal/auth"
	"github.com/inmobiliaria/gestion-chat/internal/chat"
	"github.com/inmobiliaria/gestion-chat/internal/middleware"
)

type memCreds struct {
	token       string
	invalidated atomic.Int32
}

func (m *memCreds) Token(context.Context) (string, error) {
	if m.token == "" {
		return "", auth.ErrNoCredential
	}
	return m.token, nil
}

func (m *memCreds) Invalidate(context.Context) error {
	m.invalidated.Add(1)
	m.token = ""
	return nil
}

func TestChatSendsBearerAndDecodesResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/agent/propiedades/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		var req chat.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Message != "casas en venta" || req.SessionID == nil || *req.SessionID != "abc123" {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"3 casas","sessionId":"abc123","success":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/", time.Second, WithCredentials(&memCreds{token: "tok-1"}))
	sid := "abc123"
	resp, err := c.Chat(context.Background(), chat.AgentProperty.Endpoint(), chat.Request{Message: "casas en venta", SessionID: &sid})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !resp.Success || resp.Response != "3 casas" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestChatOmitsSessionIDWhenAbsent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		_ = json.NewDecoder(r.Body).Decode(&raw)
		if _, ok := raw["sessionId"]; ok {
			t.Errorf("sessionId present in %v", raw)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("no credential should mean no Authorization header")
		}
		_, _ = w.Write([]byte(`{"response":"hi","sessionId":"s","success":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 0, WithCredentials(&memCreds{}))
	if _, err := c.Chat(context.Background(), "/agent/chat", chat.Request{Message: "hola"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
}

func TestChatServerErrorWithChatBodyIsApplicationFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"response":null,"sessionId":null,"success":false,"error":"Unexpected error: db down"}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, time.Second).Chat(context.Background(), "/agent/chat", chat.Request{Message: "x"})
	if err != nil {
		t.Fatalf("expected application failure, got error %v", err)
	}
	if resp.Success || resp.Error == nil || *resp.Error != "Unexpected error: db down" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestChatServerErrorWithMessageBodyIsTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"Upstream unavailable"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Chat(context.Background(), "/agent/chat", chat.Request{Message: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("err = %v, want APIError 502", err)
	}
	if got := chat.DetailFromError(err); got != "Upstream unavailable" {
		t.Fatalf("detail = %q", got)
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Fatal("502 must not match ErrUnauthenticated")
	}
}

func TestChatWithoutErrorBodyUsesStatusText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Chat(context.Background(), "/agent/chat", chat.Request{Message: "x"})
	if got := chat.DetailFromError(err); got != "request failed with status code 503" {
		t.Fatalf("detail = %q", got)
	}
}

func TestChatUnauthenticatedInvalidatesCredential(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message":"Token expired"}`))
		}))

		creds := &memCreds{token: "old"}
		var called atomic.Int32
		c := New(srv.URL, time.Second,
			WithCredentials(creds),
			WithUnauthenticatedHandler(func(context.Context) { called.Add(1) }),
		)

		_, err := c.Chat(context.Background(), "/agent/chat", chat.Request{Message: "x"})
		srv.Close()

		if !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("status %d: err = %v, want ErrUnauthenticated", status, err)
		}
		if creds.invalidated.Load() != 1 || called.Load() != 1 {
			t.Fatalf("status %d: invalidated=%d called=%d", status, creds.invalidated.Load(), called.Load())
		}
		if got := chat.DetailFromError(err); got != "Token expired" {
			t.Fatalf("status %d: detail = %q", status, got)
		}
	}
}

func TestChatConnectionRefusedIsTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).Chat(context.Background(), "/agent/chat", chat.Request{Message: "x"})
	var te *chat.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *chat.TransportError", err)
	}
	if chat.DetailFromError(err) == "" {
		t.Fatal("detail must not be empty")
	}
}

func TestChatMalformedSuccessBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>proxy</html>`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Chat(context.Background(), "/agent/chat", chat.Request{Message: "x"})
	var te *chat.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *chat.TransportError", err)
	}
}

func TestChatSuccessBodyWithoutFlagIsTransportError(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`null`, `{}`, `{"response":"hola"}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}))

		resp, err := New(srv.URL, time.Second).Chat(context.Background(), "/agent/chat", chat.Request{Message: "x"})
		srv.Close()

		var te *chat.TransportError
		if !errors.As(err, &te) || resp != nil {
			t.Fatalf("body %s: resp = %+v, err = %v, want *chat.TransportError", body, resp, err)
		}
	}
}

func TestLoginAndLogout(t *testing.T) {
	t.Parallel()

	var loggedOut atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", postOnly(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["email"] != "admin@test.com" || in["password"] != "admin123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid email or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"jwt","tokenType":"Bearer","user":{"id":1,"email":"admin@test.com","fullName":"Admin","role":"ADMIN"}}`))
	}))
	mux.HandleFunc("/auth/logout", postOnly(func(w http.ResponseWriter, r *http.Request) {
		loggedOut.Store(true)
		w.WriteHeader(http.StatusNoContent)
	}))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	creds := &memCreds{}
	c := New(srv.URL, time.Second, WithCredentials(creds))

	login, err := c.Login(context.Background(), "admin@test.com", "admin123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.Token != "jwt" || login.User.Role != "ADMIN" {
		t.Fatalf("login = %+v", login)
	}

	_, err = c.Login(context.Background(), "admin@test.com", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Invalid email or password" {
		t.Fatalf("bad login err = %v", err)
	}
	if creds.invalidated.Load() != 0 {
		t.Fatal("failed login must not invalidate anything")
	}

	creds.token = "jwt"
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if !loggedOut.Load() || creds.invalidated.Load() != 1 {
		t.Fatalf("logout: server=%v invalidated=%d", loggedOut.Load(), creds.invalidated.Load())
	}
}

func TestChatForwardsCorrelationID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(middleware.CorrelationIDHeader); got != "corr-42" {
			t.Errorf("correlation id = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("unexpected Authorization %q", got)
		}
		_, _ = w.Write([]byte(`{"response":"ok","success":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 0, WithHTTPClient(srv.Client()))
	ctx := middleware.WithCorrelationID(context.Background(), "corr-42")
	if _, err := c.Chat(ctx, chat.AgentAgency.Endpoint(), chat.Request{Message: "hola"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
}

// postOnly restricts h to POST, like a "POST /path" ServeMux pattern
// (method patterns require Go 1.22).
func postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
