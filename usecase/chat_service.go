package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/domain/entities"
	"github.com/satriahrh/lexvoice/domain/repositories"
)

const (
	// RateLimitedReply is returned when every attempt hit a provider rate limit
	RateLimitedReply = "I'm experiencing high demand. Please try again in a moment."
	// FailedReply is returned for any other generation failure
	FailedReply = "I apologize, but I'm having trouble processing your request. Please try again."
)

// GenerationMode selects how conversation history reaches the model
type GenerationMode string

const (
	// SingleShot sends only the system instruction and the newest user turn
	SingleShot GenerationMode = "single"
	// HistoryAware sends every prior turn followed by the newest user turn
	HistoryAware GenerationMode = "history"
)

func (m GenerationMode) Valid() bool {
	return m == SingleShot || m == HistoryAware
}

// ChatConfig configures the generation stage
type ChatConfig struct {
	Generation  repositories.GenerationConfig
	MaxAttempts int
	BackoffStep time.Duration
}

// DefaultChatConfig returns the sampling and retry settings used when
// nothing is configured
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		Generation: repositories.GenerationConfig{
			MaxOutputTokens: 800,
			Temperature:     0.7,
			TopP:            0.9,
			TopK:            40,
		},
		MaxAttempts: 3,
		BackoffStep: 2 * time.Second,
	}
}

// ChatService produces the assistant's reply for a conversation. It never
// fails: provider errors end in one of the apology replies.
type ChatService struct {
	llm     repositories.LargeLanguageModel
	config  ChatConfig
	logger  *zap.Logger
	metrics MetricsRecorder
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewChatService creates a new chat service
func NewChatService(llm repositories.LargeLanguageModel, config ChatConfig, logger *zap.Logger) *ChatService {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	return &ChatService{
		llm:     llm,
		config:  config,
		logger:  logger,
		metrics: nopRecorder{},
		sleep:   sleepContext,
	}
}

// WithMetrics attaches a recorder for retry counts
func (s *ChatService) WithMetrics(m MetricsRecorder) *ChatService {
	if m != nil {
		s.metrics = m
	}
	return s
}

// Respond dispatches to the generation mode
func (s *ChatService) Respond(ctx context.Context, mode GenerationMode, turns []entities.Turn, user entities.UserContext) string {
	if mode == SingleShot {
		return s.Reply(ctx, turns, user)
	}
	return s.ReplyWithHistory(ctx, turns, user)
}

// Reply answers the newest user turn without prior context
func (s *ChatService) Reply(ctx context.Context, turns []entities.Turn, user entities.UserContext) string {
	last, err := lastUserTurn(turns)
	if err != nil {
		return s.fail(err, 0)
	}

	prompt := SystemInstruction(user) + "\n\nUser Question: " + last.Content
	return s.withRetry(ctx, func(ctx context.Context) (string, error) {
		return s.llm.Generate(ctx, prompt, s.config.Generation)
	})
}

// ReplyWithHistory answers the newest user turn with every earlier turn as
// context. The system instruction is prefixed to the first turn sent.
func (s *ChatService) ReplyWithHistory(ctx context.Context, turns []entities.Turn, user entities.UserContext) string {
	if _, err := lastUserTurn(turns); err != nil {
		return s.fail(err, 0)
	}

	messages := make([]repositories.ChatMessage, len(turns))
	for i, turn := range turns {
		messages[i] = repositories.ChatMessage{Role: chatRole(turn.Role), Content: turn.Content}
	}
	messages[0].Content = SystemInstruction(user) + "\n\n" + messages[0].Content

	history, message := messages[:len(messages)-1], messages[len(messages)-1]
	return s.withRetry(ctx, func(ctx context.Context) (string, error) {
		session, err := s.llm.GenerateChat(ctx, history, s.config.Generation)
		if err != nil {
			return "", err
		}
		reply, err := session.SendMessage(ctx, message)
		if err != nil {
			return "", err
		}
		return reply.Content, nil
	})
}

// withRetry runs call up to MaxAttempts times. Rate-limited attempts wait
// attempt*BackoffStep before the next try; other failures retry at once.
func (s *ChatService) withRetry(ctx context.Context, call func(ctx context.Context) (string, error)) string {
	var lastErr error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		text, err := call(ctx)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errors.New("empty response from model")
		}
		if err == nil {
			return text
		}
		lastErr = err

		if ctx.Err() != nil {
			return s.fail(err, attempt)
		}

		limited := IsRateLimited(err)
		s.logger.Warn("Failed to generate response",
			zap.Int("attempt", attempt),
			zap.Bool("rateLimited", limited),
			zap.Error(err))

		if attempt == s.config.MaxAttempts {
			break
		}
		s.metrics.GenerationRetry()
		if limited {
			if err := s.sleep(ctx, time.Duration(attempt)*s.config.BackoffStep); err != nil {
				return s.fail(err, attempt)
			}
		}
	}

	if IsRateLimited(lastErr) {
		s.logger.Error("Generation rate limited on every attempt",
			zap.Error(&GenerationError{Attempts: s.config.MaxAttempts, Err: lastErr}))
		return RateLimitedReply
	}
	return s.fail(lastErr, s.config.MaxAttempts)
}

func (s *ChatService) fail(err error, attempts int) string {
	s.logger.Error("Generation failed", zap.Error(&GenerationError{Attempts: attempts, Err: err}))
	return FailedReply
}

// IsRateLimited reports whether err signals provider throttling
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, repositories.ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource_exhausted")
}

// SystemInstruction frames the assistant as a legal advisor for the user's
// jurisdiction and tone, tuned for spoken answers
func SystemInstruction(user entities.UserContext) string {
	jurisdiction := user.Jurisdiction
	if jurisdiction == "" {
		jurisdiction = entities.DefaultJurisdiction
	}
	style := user.ConversationStyle
	if style == "" {
		style = entities.StyleFormal
	}

	return fmt.Sprintf(`You are an expert AI legal advisor specializing in %[1]s law. Provide accurate, helpful legal information while maintaining a %[2]s conversational style.

IMPORTANT GUIDELINES:
- Provide general legal information, not specific legal advice
- Always recommend consulting a qualified lawyer for specific cases
- Be empathetic and understanding
- Reference relevant %[1]s laws, acts, and sections when applicable
- Keep responses to about 300-400 words and under 1500 characters; they will be spoken aloud
- Use simple, clear language suitable for voice conversation
- Avoid markdown, bullet points and headings
- If the question is not legal in nature, politely redirect to legal topics

Respond in a %[2]s, natural manner as if speaking to someone in person.`, jurisdiction, style)
}

func lastUserTurn(turns []entities.Turn) (entities.Turn, error) {
	if len(turns) == 0 {
		return entities.Turn{}, errors.New("no turns to respond to")
	}
	last := turns[len(turns)-1]
	if last.Role != entities.RoleUser {
		return entities.Turn{}, fmt.Errorf("newest turn has role %q, want %q", last.Role, entities.RoleUser)
	}
	return last, nil
}

func chatRole(role entities.Role) repositories.Role {
	if role == entities.RoleAssistant {
		return repositories.ModelRole
	}
	return repositories.UserRole
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
