// Package main runs the development agent backend: the login and agent
// chat API the gateway and the terminal client talk to.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/inmobiliaria/gestion-chat/internal/agentsvc"
	"github.com/inmobiliaria/gestion-chat/internal/config"
	"github.com/inmobiliaria/gestion-chat/internal/handler"
	"github.com/inmobiliaria/gestion-chat/internal/llm"
	"github.com/inmobiliaria/gestion-chat/internal/store"
	"github.com/inmobiliaria/gestion-chat/pkg/logger"
	"github.com/inmobiliaria/gestion-chat/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var log *logger.Logger
	if cfg.IsDevelopment() {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "gestion-chat-agentd", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	history, err := store.Open(cfg.Agentd.DBPath)
	if err != nil {
		log.Fatal("failed to open history store", zap.Error(err), zap.String("path", cfg.Agentd.DBPath))
	}
	defer history.Close()

	provider := cfg.Agentd.LLMProvider()
	var apiKey, model string
	switch provider {
	case config.LLMAnthropic:
		apiKey, model = cfg.Agentd.AnthropicAPIKey, cfg.Agentd.AnthropicModel
	case config.LLMOpenAI:
		apiKey, model = cfg.Agentd.OpenAIAPIKey, cfg.Agentd.OpenAIModel
	}
	llmClient, err := llm.NewClient(llm.Provider(provider), apiKey, model)
	if err != nil {
		log.Fatal("failed to create LLM client", zap.Error(err), zap.String("provider", provider))
	}
	log.Info("starting agent backend", zap.String("llm", llmClient.Name()), zap.String("db", cfg.Agentd.DBPath))

	srv := agentsvc.NewServer(agentsvc.Config{
		JWTSecret:     cfg.JWTSecret,
		JWTExpiration: cfg.JWTExpiration,
		HistoryLimit:  cfg.Agentd.HistoryLimit,
		User: agentsvc.DevUser{
			Email:    cfg.Agentd.DevUserEmail,
			Password: cfg.Agentd.DevUserPassword,
			FullName: cfg.Agentd.DevUserName,
		},
		LoginLimit:  cfg.RateLimitRequests,
		LoginWindow: cfg.RateLimitWindow,
	}, history, llmClient, log)

	health := handler.NewHealthHandler(map[string]handler.ReadinessCheck{
		"sqlite": history.Ping,
	})

	server := &http.Server{
		Addr: ":" + cfg.Agentd.Port,
		Handler: srv.Handler(func(r chi.Router) {
			r.Get("/health", health.Health)
			r.Get("/ready", health.Ready)
			r.Handle("/metrics", promhttp.Handler())
		}),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Agentd.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}
