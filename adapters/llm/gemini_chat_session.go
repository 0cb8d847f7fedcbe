package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/lexvoice/domain/repositories"
)

// GeminiChatSession implements the ChatSession interface
type GeminiChatSession struct {
	client  *genai.Client
	logger  *zap.Logger
	model   string
	timeout time.Duration
	config  *genai.GenerateContentConfig
	history []*genai.Content
}

// NewGeminiChatSession creates a new chat session seeded with history
func NewGeminiChatSession(
	client *genai.Client,
	model string,
	timeout time.Duration,
	config *genai.GenerateContentConfig,
	logger *zap.Logger,
	history []repositories.ChatMessage,
) *GeminiChatSession {
	return &GeminiChatSession{
		client:  client,
		logger:  logger,
		model:   model,
		timeout: timeout,
		config:  config,
		history: convertRepositoryToGeminiFormat(history),
	}
}

// SendMessage sends a message against the history and records the exchange.
// Failures leave the history untouched.
func (s *GeminiChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	userContent := genai.NewContentFromText(message.Content, genai.RoleUser)

	contents := make([]*genai.Content, 0, len(s.history)+1)
	contents = append(contents, s.history...)
	contents = append(contents, userContent)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	response, err := s.client.Models.GenerateContent(ctx, s.model, contents, s.config)
	if err != nil {
		return repositories.ChatMessage{}, classifyError(err)
	}

	responseText, err := responseText(response)
	if err != nil {
		s.logger.Warn("No usable content in chat session", zap.Error(err))
		return repositories.ChatMessage{}, err
	}

	s.history = append(s.history, userContent, genai.NewContentFromText(responseText, genai.RoleModel))

	s.logger.Debug("Chat session message processed",
		zap.Int("messageLength", len(message.Content)),
		zap.Int("responseLength", len(responseText)),
		zap.Int("historyLength", len(s.history)))

	return repositories.ChatMessage{
		Role:    repositories.ModelRole,
		Content: responseText,
	}, nil
}

// convertRepositoryToGeminiFormat converts repository messages to Gemini format
func convertRepositoryToGeminiFormat(messages []repositories.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		var role genai.Role = genai.RoleUser
		if msg.Role == repositories.ModelRole {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}
