// Package config provides environment configuration for the gateway, the
// development agent backend and the terminal client.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LLM provider names accepted by DEFAULT_LLM.
const (
	LLMAuto      = "auto"
	LLMAnthropic = "anthropic"
	LLMOpenAI    = "openai"
	LLMEcho      = "echo"
)

// Config holds all configuration for the application.
type Config struct {
	Env string

	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// Backend agent API
	AgentAPIBaseURL string
	AgentAPITimeout time.Duration

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Chat views held by the gateway
	ChatViewIdleTTL   time.Duration
	ChatSweepInterval time.Duration

	// NATS audit stream
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string
	// NATSAuditMaxAge bounds how long audit records are retained.
	NATSAuditMaxAge time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool

	Agentd AgentdConfig
	CLI    CLIConfig
}

// AgentdConfig configures the development agent backend.
type AgentdConfig struct {
	Port            string
	DBPath          string
	DefaultLLM      string
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	HistoryLimit    int
	DevUserEmail    string
	DevUserPassword string
	DevUserName     string
}

// CLIConfig configures the terminal client.
type CLIConfig struct {
	CredentialsPath string
	LogPath         string
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{
		Env: getEnv("ENV", "production"),

		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
		CORSOrigins:        getListEnv("CORS_ALLOWED_ORIGINS", []string{"https://*", "http://*"}),

		// Agent API
		AgentAPIBaseURL: strings.TrimRight(getEnv("AGENT_API_BASE_URL", "http://localhost:8081/api"), "/"),
		AgentAPITimeout: getDurationEnv("AGENT_API_TIMEOUT", 30*time.Second),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 24*time.Hour),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Chat views
		ChatViewIdleTTL:   getDurationEnv("CHAT_VIEW_IDLE_TTL", 30*time.Minute),
		ChatSweepInterval: getDurationEnv("CHAT_SWEEP_INTERVAL", time.Minute),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		NATSAuditMaxAge: getDurationEnv("NATS_AUDIT_MAX_AGE", 7*24*time.Hour),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),

		Agentd: AgentdConfig{
			Port:            getEnv("AGENTD_PORT", "8081"),
			DBPath:          getEnv("AGENTD_DB_PATH", "./data/agentd.db"),
			DefaultLLM:      strings.ToLower(getEnv("DEFAULT_LLM", LLMAuto)),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			HistoryLimit:    getIntEnv("AGENTD_HISTORY_LIMIT", 20),
			DevUserEmail:    getEnv("DEV_USER_EMAIL", "admin@test.com"),
			DevUserPassword: getEnv("DEV_USER_PASSWORD", "admin123"),
			DevUserName:     getEnv("DEV_USER_NAME", "Administrador"),
		},

		CLI: CLIConfig{
			CredentialsPath: getEnv("CHAT_CREDENTIALS_PATH", defaultStatePath("credentials.db")),
			LogPath:         getEnv("CHAT_LOG_PATH", defaultStatePath("chat.log")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	u, err := url.Parse(c.AgentAPIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("AGENT_API_BASE_URL must be an absolute http(s) URL, got %q", c.AgentAPIBaseURL)
	}
	if c.AgentAPITimeout <= 0 {
		return fmt.Errorf("AGENT_API_TIMEOUT must be > 0")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ChatViewIdleTTL <= 0 {
		return fmt.Errorf("CHAT_VIEW_IDLE_TTL must be > 0")
	}
	if c.ChatSweepInterval <= 0 {
		return fmt.Errorf("CHAT_SWEEP_INTERVAL must be > 0")
	}
	if c.NATSEnabled && c.NATSURL == "" {
		return fmt.Errorf("NATS_URL cannot be empty when NATS_ENABLED is set")
	}
	switch c.Agentd.DefaultLLM {
	case LLMAuto, LLMAnthropic, LLMOpenAI, LLMEcho:
	default:
		return fmt.Errorf("DEFAULT_LLM must be one of auto, anthropic, openai, echo, got %q", c.Agentd.DefaultLLM)
	}
	if c.Agentd.HistoryLimit < 0 {
		return fmt.Errorf("AGENTD_HISTORY_LIMIT must be >= 0")
	}
	return nil
}

// IsDevelopment reports whether ENV is development.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// LLMProvider resolves DEFAULT_LLM to a concrete provider. In auto mode the
// first provider with an API key wins and echo is the fallback.
func (a AgentdConfig) LLMProvider() string {
	switch a.DefaultLLM {
	case LLMAnthropic, LLMOpenAI, LLMEcho:
		return a.DefaultLLM
	}
	if a.AnthropicAPIKey != "" {
		return LLMAnthropic
	}
	if a.OpenAIAPIKey != "" {
		return LLMOpenAI
	}
	return LLMEcho
}

func defaultStatePath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "gestion-chat", name)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
