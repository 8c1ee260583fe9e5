// Package main is the entry point for the chat gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/inmobiliaria/gestion-chat/internal/agentapi"
	"github.com/inmobiliaria/gestion-chat/internal/auth"
	"github.com/inmobiliaria/gestion-chat/internal/config"
	"github.com/inmobiliaria/gestion-chat/internal/handler"
	"github.com/inmobiliaria/gestion-chat/internal/middleware"
	natsclient "github.com/inmobiliaria/gestion-chat/internal/nats"
	"github.com/inmobiliaria/gestion-chat/internal/service"
	"github.com/inmobiliaria/gestion-chat/pkg/logger"
	"github.com/inmobiliaria/gestion-chat/pkg/metrics"
	"github.com/inmobiliaria/gestion-chat/pkg/tracing"
)

const statsInterval = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting chat gateway", zap.String("env", cfg.Env), zap.String("agent_api", cfg.AgentAPIBaseURL))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "gestion-chat-gateway", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// The browser's token travels on the request context to the agent service.
	agents := agentapi.New(cfg.AgentAPIBaseURL, cfg.AgentAPITimeout,
		agentapi.WithCredentials(auth.ContextProvider{}),
		agentapi.WithLogger(log),
	)

	checks := map[string]handler.ReadinessCheck{}
	opts := []service.Option{service.WithRecorder(metrics.ChatRecorder{})}

	if cfg.NATSEnabled {
		natsClient, err := natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		audit := natsclient.NewAuditStream(natsClient, cfg.NATSAuditMaxAge, log)
		if err := audit.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure audit stream", zap.Error(err))
		}
		opts = append(opts, service.WithAudit(audit, audit))
		checks["nats"] = natsClient.Check
		go recordStreamStats(ctx, audit, log)
	}

	chats := service.NewChatService(agents, cfg.ChatViewIdleTTL, log, opts...)
	go chats.Run(ctx, cfg.ChatSweepInterval)

	healthHandler := handler.NewHealthHandler(checks)
	authHandler := handler.NewAuthHandler(agents, log)
	chatHandler := handler.NewChatHandler(chats, log)
	streamHandler := handler.NewStreamHandler(chats, originPatterns(cfg.CORSOrigins), log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.IPRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow)).
			Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

			r.Get("/auth/me", authHandler.Me)
			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/agents", chatHandler.ListAgents)

			r.Post("/chats", chatHandler.Create)
			r.Route("/chats/{id}", func(r chi.Router) {
				r.Get("/", chatHandler.Get)
				r.Delete("/", chatHandler.Delete)
				r.Post("/messages", chatHandler.Send)
				r.Put("/agent", chatHandler.ChangeAgent)
				r.Post("/reset", chatHandler.Reset)
				r.With(middleware.RequireRole("ADMIN", "AGENT")).Get("/audit", chatHandler.Audit)
				r.Get("/ws", streamHandler.Stream)
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
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

	log.Info("server stopped", zap.Int("open_chats", chats.Count()))
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	if cfg.IsDevelopment() {
		return logger.NewDevelopment()
	}
	return logger.New(cfg.LogLevel)
}

func recordStreamStats(ctx context.Context, audit *natsclient.AuditStream, log *logger.Logger) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		if err := audit.RecordStats(ctx); err != nil && ctx.Err() == nil {
			log.Debug("failed to record stream stats", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// originPatterns turns CORS origins into the host patterns the WebSocket
// handshake checks.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
