package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/satriahrh/lexvoice/domain/repositories"
)

// MockGeminiClient is a placeholder implementation for Gemini LLM
type MockGeminiClient struct{}

var _ repositories.LargeLanguageModel = (*MockGeminiClient)(nil)

// NewMockGeminiClient creates a new mock Gemini client
func NewMockGeminiClient() *MockGeminiClient {
	return &MockGeminiClient{}
}

// Generate answers the question found after the last "User Question:" marker
func (g *MockGeminiClient) Generate(ctx context.Context, prompt string, config repositories.GenerationConfig) (string, error) {
	question := prompt
	if i := strings.LastIndex(prompt, "User Question:"); i >= 0 {
		question = strings.TrimSpace(prompt[i+len("User Question:"):])
	}
	return mockAnswer(question), nil
}

// GenerateChat implements repositories.LargeLanguageModel
func (g *MockGeminiClient) GenerateChat(ctx context.Context, history []repositories.ChatMessage, config repositories.GenerationConfig) (repositories.ChatSession, error) {
	return &MockGeminiChatSession{}, nil
}

// MockGeminiChatSession implements repositories.ChatSession. Answers depend
// only on the latest message.
type MockGeminiChatSession struct{}

// SendMessage implements repositories.ChatSession
func (g *MockGeminiChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	content := message.Content
	if i := strings.LastIndex(content, "\n\n"); i >= 0 {
		content = content[i+2:]
	}
	responseMessage := repositories.ChatMessage{
		Role:    repositories.ModelRole,
		Content: mockAnswer(content),
	}

	return responseMessage, nil
}

func mockAnswer(question string) string {
	if strings.TrimSpace(question) == "" {
		return "I didn't catch a question. Could you tell me what legal matter you need help with?"
	}
	return fmt.Sprintf("Thank you for your question about %q. This is general legal information, not legal advice. "+
		"Please consult a qualified lawyer about the specifics of your situation.", question)
}
