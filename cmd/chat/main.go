// Package main is the terminal chat client for the back-office agents.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/inmobiliaria/gestion-chat/internal/agentapi"
	"github.com/inmobiliaria/gestion-chat/internal/auth"
	"github.com/inmobiliaria/gestion-chat/internal/chat"
	"github.com/inmobiliaria/gestion-chat/internal/config"
	"github.com/inmobiliaria/gestion-chat/internal/model"
	"github.com/inmobiliaria/gestion-chat/internal/tui"
	"github.com/inmobiliaria/gestion-chat/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	email := flag.String("email", "", "login email to prefill when no token is stored")
	agent := flag.String("agent", string(chat.DefaultAgent), "initial agent: inmobiliaria, propiedad or persona")
	apiURL := flag.String("api", cfg.AgentAPIBaseURL, "agent API base URL")
	logout := flag.Bool("logout", false, "forget the stored token and exit")
	flag.Parse()

	kind, err := chat.ParseAgentKind(*agent)
	if err != nil {
		return err
	}

	// stdout belongs to the UI.
	log, err := logger.NewFile(cfg.LogLevel, cfg.CLI.LogPath)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	creds, err := auth.OpenStore(cfg.CLI.CredentialsPath)
	if err != nil {
		return err
	}
	defer creds.Close()

	client := agentapi.New(*apiURL, cfg.AgentAPITimeout,
		agentapi.WithCredentials(creds),
		agentapi.WithLogger(log),
		agentapi.WithUnauthenticatedHandler(func(context.Context) {
			log.Info("stored credential rejected")
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if *logout {
		if err := client.Logout(ctx); err != nil {
			log.Warn("logout", zap.Error(err))
		}
		fmt.Println("Sesión cerrada.")
		return nil
	}

	for {
		user, err := ensureLogin(ctx, client, creds, *email)
		if errors.Is(err, errLoginAborted) {
			return nil
		}
		if err != nil {
			return err
		}

		d := chat.NewDispatcher(client, kind, chat.WithLogger(log))
		final, err := tea.NewProgram(tui.New(ctx, d, user.Email), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return err
		}
		m, ok := final.(tui.Model)
		if !ok || !m.Unauthenticated() {
			return nil
		}
		fmt.Println("La sesión expiró o fue rechazada. Inicia sesión de nuevo.")
	}
}

var errLoginAborted = errors.New("login aborted")

// ensureLogin returns the stored user or runs the login form until the
// backend accepts the credentials.
func ensureLogin(ctx context.Context, client *agentapi.Client, creds *auth.Store, email string) (*model.User, error) {
	if _, err := creds.Token(ctx); err == nil {
		if u, err := creds.User(); err == nil && u != nil {
			return u, nil
		}
	} else if !errors.Is(err, auth.ErrNoCredential) {
		return nil, err
	}

	var notice string
	for attempt := 0; attempt < 3; attempt++ {
		final, err := tea.NewProgram(tui.NewLoginForm(email, notice), tea.WithContext(ctx)).Run()
		if err != nil {
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil, errLoginAborted
			}
			return nil, err
		}
		form, ok := final.(tui.LoginForm)
		if !ok || !form.Submitted() {
			return nil, errLoginAborted
		}

		var password string
		email, password = form.Credentials()
		resp, err := client.Login(ctx, email, password)
		if err == nil {
			if err := creds.Save(resp); err != nil {
				return nil, err
			}
			fmt.Printf("Hola, %s.\n", resp.User.FullName)
			return &resp.User, nil
		}

		var apiErr *agentapi.APIError
		if !errors.As(err, &apiErr) {
			return nil, fmt.Errorf("login: %w", err)
		}
		notice = "Credenciales inválidas."
	}
	return nil, errors.New("too many failed login attempts")
}
