// Package llm provides the language model clients behind the development
// agent backend.
package llm

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/inmobiliaria/gestion-chat/pkg/metrics"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderEcho      Provider = "echo"
)

// NewClient creates a new LLM client based on provider. The returned client
// records metrics and a trace span for every completion.
func NewClient(provider Provider, apiKey, model string) (Client, error) {
	var (
		c   Client
		err error
	)
	switch provider {
	case ProviderAnthropic:
		c, err = NewAnthropicClient(apiKey, model)
	case ProviderOpenAI:
		c, err = NewOpenAIClient(apiKey, model)
	case ProviderEcho:
		c = NewEchoClient()
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(c), nil
}

// Instrument wraps c with metrics and tracing.
func Instrument(c Client) Client {
	return &instrumented{next: c}
}

type instrumented struct {
	next Client
}

func (i *instrumented) Name() string {
	return i.next.Name()
}

func (i *instrumented) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	ctx, span := otel.Tracer("github.com/inmobiliaria/gestion-chat/internal/llm").Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", i.next.Name()),
		attribute.Int("llm.messages", len(req.Messages)),
	)

	start := time.Now()
	resp, err := i.next.Complete(ctx, req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordLLM(i.next.Name(), "error", elapsed, 0, 0)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("llm.model", resp.Model),
		attribute.Int("llm.tokens_in", resp.TokensIn),
		attribute.Int("llm.tokens_out", resp.TokensOut),
	)
	metrics.RecordLLM(resp.Model, "success", elapsed, resp.TokensIn, resp.TokensOut)
	return resp, nil
}
