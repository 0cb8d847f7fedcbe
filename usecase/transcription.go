package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/domain/repositories"
)

// ErrNoResult is wrapped in a TranscriptionError when the provider returned
// no result at all
var ErrNoResult = errors.New("provider returned no result")

// TranscriptionService turns one complete audio utterance into text. It does
// not retry; a failure ends the turn.
type TranscriptionService struct {
	stt      repositories.SpeechToText
	language string
	logger   *zap.Logger
}

// NewTranscriptionService creates a new transcription service
func NewTranscriptionService(stt repositories.SpeechToText, language string, logger *zap.Logger) *TranscriptionService {
	return &TranscriptionService{stt: stt, language: language, logger: logger}
}

// Transcribe returns the transcript of audio. Silence yields an empty
// transcript, not an error. Errors are *TranscriptionError.
func (s *TranscriptionService) Transcribe(ctx context.Context, audio []byte, mimeType string) (*repositories.Transcription, error) {
	if len(audio) == 0 {
		return nil, &TranscriptionError{Err: errors.New("audio is empty")}
	}

	start := time.Now()
	result, err := s.stt.TranscribeAudio(ctx, audio, repositories.AudioConfig{
		Language: s.language,
		MimeType: mimeType,
	})
	if err != nil {
		s.logger.Error("Transcription failed", zap.Int("audioSize", len(audio)), zap.Error(err))
		return nil, &TranscriptionError{Err: err}
	}
	if result == nil {
		return nil, &TranscriptionError{Err: ErrNoResult}
	}
	result.Transcript = strings.TrimSpace(result.Transcript)

	s.logger.Info("Transcription completed",
		zap.Int("audioSize", len(audio)),
		zap.Float64("confidence", result.Confidence),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}
