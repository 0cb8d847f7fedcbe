package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/lexvoice/domain/repositories"
)

// GeminiLLM implements the LargeLanguageModel interface using Google's Gemini API
type GeminiLLM struct {
	client  *genai.Client
	logger  *zap.Logger
	model   string
	timeout time.Duration
}

var _ repositories.LargeLanguageModel = (*GeminiLLM)(nil)

// NewGeminiLLM creates a new Gemini LLM instance
func NewGeminiLLM(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiLLM, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}
	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &GeminiLLM{
		client:  client,
		logger:  logger,
		model:   model,
		timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// Generate sends a single prompt without history
func (g *GeminiLLM) Generate(ctx context.Context, prompt string, config repositories.GenerationConfig) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, contentConfig(config))
	if err != nil {
		return "", classifyError(err)
	}

	text, err := responseText(response)
	if err != nil {
		return "", err
	}

	g.logger.Debug("Generated content",
		zap.String("model", g.model),
		zap.Int("promptLength", len(prompt)),
		zap.Int("responseLength", len(text)))
	return text, nil
}

// GenerateChat creates a chat session with history
func (g *GeminiLLM) GenerateChat(ctx context.Context, history []repositories.ChatMessage, config repositories.GenerationConfig) (repositories.ChatSession, error) {
	return NewGeminiChatSession(g.client, g.model, g.timeout, contentConfig(config), g.logger, history), nil
}
