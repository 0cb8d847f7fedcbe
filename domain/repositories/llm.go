package repositories

import (
	"context"
	"errors"
)

// ErrRateLimited is wrapped by model adapters when the provider signals
// "too many requests" or "resource exhausted"
var ErrRateLimited = errors.New("rate limited by provider")

// LargeLanguageModel abstracts any chat/LLM provider
type LargeLanguageModel interface {
	// Generate takes a single prompt and returns the model's reply
	Generate(ctx context.Context, prompt string, config GenerationConfig) (string, error)
	// GenerateChat creates a chat session seeded with history
	GenerateChat(ctx context.Context, history []ChatMessage, config GenerationConfig) (ChatSession, error)
}

// ChatSession represents an ongoing conversation session. Each successful
// SendMessage extends the context of the next one.
type ChatSession interface {
	SendMessage(ctx context.Context, message ChatMessage) (ChatMessage, error)
}

// GenerationConfig bounds the model output. Zero values leave the provider
// default in place.
type GenerationConfig struct {
	MaxOutputTokens int32
	Temperature     float32
	TopP            float32
	TopK            float32
}

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole  Role = "user"
	ModelRole Role = "model"
)
