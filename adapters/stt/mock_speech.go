package stt

import (
	"context"

	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/domain/repositories"
)

// MockSpeechToText returns canned legal questions for offline development
type MockSpeechToText struct {
	logger *zap.Logger
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{logger: logger}
}

// TranscribeAudio picks a transcript by audio size
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (*repositories.Transcription, error) {
	s.logger.Info("Processing mock speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.String("mimeType", config.MimeType),
		zap.String("language", config.Language))

	var transcript string
	switch {
	case len(audioData) > 10000:
		transcript = "My employer has not paid my salary for three months. What legal options do I have?"
	case len(audioData) > 5000:
		transcript = "Can my landlord keep my security deposit?"
	case len(audioData) > 1000:
		transcript = "What is anticipatory bail?"
	default:
		transcript = "Hello"
	}
	return &repositories.Transcription{Transcript: transcript, Confidence: 0.99}, nil
}
