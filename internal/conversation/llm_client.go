package conversation

import (
	"context"
	"encoding/json"
	"time"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is an internal message representation that can include system prompts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// ToolDefinition describes a function the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	Tools       []ToolDefinition
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type LLMResponse struct {
	Text       string
	ToolCalls  []ToolCall
	Usage      TokenUsage
	StopReason string
}

type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// LLMLatencyObserver receives the wall-clock duration of successful
// completions, labelled by model.
type LLMLatencyObserver interface {
	ObserveLLMLatency(model string, d time.Duration)
}

// TimedLLMClient wraps an LLMClient and reports completion latency to an
// observer. Failed completions are not observed; their latency reflects
// timeouts and retries, not model performance.
type TimedLLMClient struct {
	inner    LLMClient
	observer LLMLatencyObserver
}

func NewTimedLLMClient(inner LLMClient, observer LLMLatencyObserver) *TimedLLMClient {
	if inner == nil {
		panic("conversation: inner llm client cannot be nil")
	}
	if observer == nil {
		panic("conversation: latency observer cannot be nil")
	}
	return &TimedLLMClient{inner: inner, observer: observer}
}

func (c *TimedLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	start := time.Now()
	resp, err := c.inner.Complete(ctx, req)
	if err == nil {
		c.observer.ObserveLLMLatency(req.Model, time.Since(start))
	}
	return resp, err
}
