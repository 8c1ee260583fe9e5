package llm

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// EchoClient answers without a model: it repeats the last user message. It
// lets the agent backend run locally without API keys.
type EchoClient struct{}

// NewEchoClient creates an echo client.
func NewEchoClient() *EchoClient {
	return &EchoClient{}
}

// Name returns the provider name.
func (c *EchoClient) Name() string {
	return "echo"
}

// Complete returns the last user message, prefixed with the number of
// earlier turns so history handling is visible.
func (c *EchoClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	var last string
	turns := 0
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			last = msg.Content
			turns++
		}
	}

	var b strings.Builder
	if turns > 1 {
		b.WriteString("(turn ")
		b.WriteString(strconv.Itoa(turns))
		b.WriteString(") ")
	}
	b.WriteString(last)

	return &CompletionResponse{
		Content:    b.String(),
		Model:      "echo",
		TokensIn:   len(strings.Fields(last)),
		TokensOut:  len(strings.Fields(last)),
		StopReason: "end_turn",
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
