package conversation

import (
	"context"
	"time"
)

// Roles for chat messages, following the OpenAI-compatible wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn in a conversation, as sent to the model and as
// stored in history.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// LLMRequest is a completion request.
type LLMRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// LLMClient generates completions. Implemented by the OpenRouter client and
// by stubs in tests.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (string, error)
}
