package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/adapters/bolt"
	"github.com/satriahrh/lexvoice/adapters/llm"
	"github.com/satriahrh/lexvoice/adapters/memory"
	"github.com/satriahrh/lexvoice/adapters/mongo"
	"github.com/satriahrh/lexvoice/adapters/stt"
	"github.com/satriahrh/lexvoice/adapters/tts"
	"github.com/satriahrh/lexvoice/domain/entities"
	"github.com/satriahrh/lexvoice/domain/repositories"
	"github.com/satriahrh/lexvoice/internal/config"
)

// stores groups the repositories of the selected backend
type stores struct {
	users         repositories.UserRepository
	conversations repositories.ConversationRepository
	close         func() error
}

func (s *stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.Storage.Backend {
	case "mongo":
		client, err := mongo.NewClient(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database, logger)
		if err != nil {
			return nil, err
		}
		conversations := mongo.NewConversationRepository(client.Database)
		if err := conversations.EnsureIndexes(ctx); err != nil {
			client.Close(context.Background())
			return nil, err
		}
		return &stores{
			users:         mongo.NewUserRepository(client.Database),
			conversations: conversations,
			close: func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return client.Close(ctx)
			},
		}, nil
	case "bolt":
		store, err := bolt.Open(cfg.Storage.Bolt.Path, logger)
		if err != nil {
			return nil, err
		}
		return &stores{
			users:         store.Users(),
			conversations: store.Conversations(),
			close:         store.Close,
		}, nil
	case "memory", "":
		logger.Warn("Using in-memory storage, conversations are lost on restart")
		return &stores{
			users:         memory.NewUserRepository(),
			conversations: memory.NewConversationRepository(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// seedUsers upserts the users listed in configuration
func seedUsers(ctx context.Context, users repositories.UserRepository, seed []entities.User, logger *zap.Logger) error {
	for i := range seed {
		user := seed[i]
		if err := users.Upsert(ctx, &user); err != nil {
			return fmt.Errorf("user %q: %w", user.ID, err)
		}
	}
	if len(seed) > 0 {
		logger.Info("Seeded users", zap.Int("count", len(seed)))
	}
	return nil
}

// newSpeechToText returns the configured provider and a func releasing it
func newSpeechToText(ctx context.Context, cfg config.STTConfig, logger *zap.Logger) (repositories.SpeechToText, func(), error) {
	noop := func() {}
	switch cfg.Provider {
	case "deepgram":
		provider, err := stt.NewDeepgramSpeechToText(stt.DeepgramConfig{
			APIKey: cfg.Deepgram.APIKey,
			Model:  cfg.Deepgram.Model,
		}, logger)
		return provider, noop, err
	case "google":
		provider, err := stt.NewGoogleSpeechToText(ctx, logger)
		if err != nil {
			return nil, noop, err
		}
		return provider, func() { provider.Close() }, nil
	case "mock", "":
		return stt.NewMockSpeechToText(logger), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown stt provider %q", cfg.Provider)
	}
}

func newTextToSpeech(cfg config.TTSConfig, defaultVoice string, logger *zap.Logger) (repositories.TextToSpeech, error) {
	switch cfg.Provider {
	case "deepgram":
		voice := cfg.Deepgram.Model
		if voice == "" {
			voice = defaultVoice
		}
		return tts.NewDeepgramTTS(tts.DeepgramConfig{
			APIKey:  cfg.Deepgram.APIKey,
			VoiceID: voice,
		}, logger)
	case "elevenlabs":
		return tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:  cfg.ElevenLabs.APIKey,
			VoiceID: cfg.ElevenLabs.VoiceID,
			ModelID: cfg.ElevenLabs.ModelID,
		}, logger)
	case "mock", "":
		return tts.NewMockTextToSpeech(logger), nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.Provider)
	}
}

func newLanguageModel(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (repositories.LargeLanguageModel, error) {
	switch cfg.Provider {
	case "gemini":
		return llm.NewGeminiLLM(ctx, llm.GeminiConfig{
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			TimeoutSeconds: cfg.TimeoutSeconds,
		}, logger)
	case "mock", "":
		return llm.NewMockGeminiClient(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
