package tts

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/domain/repositories"
)

// MockTextToSpeech streams a short silent MP3 frame sequence for offline
// development
type MockTextToSpeech struct {
	logger *zap.Logger
}

// NewMockTextToSpeech creates a new mock text-to-speech service
func NewMockTextToSpeech(logger *zap.Logger) *MockTextToSpeech {
	return &MockTextToSpeech{logger: logger}
}

// silentFrame is one MPEG-1 Layer III frame header followed by zeroed data
var silentFrame = append([]byte{0xFF, 0xFB, 0x90, 0x64}, make([]byte, 413)...)

// ConvertTextToSpeech emits one silent frame per 100 characters of text
func (m *MockTextToSpeech) ConvertTextToSpeech(ctx context.Context, text string, voiceID string) (*repositories.AudioStream, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	frames := len(text)/100 + 1
	m.logger.Info("Processing mock text-to-speech",
		zap.Int("textLength", len(text)),
		zap.String("voiceID", voiceID),
		zap.Int("frames", frames))

	stream := repositories.NewAudioStream("audio/mpeg", frames)
	go func() {
		for i := 0; i < frames; i++ {
			if !stream.Send(ctx, silentFrame) {
				stream.Finish(ctx.Err())
				return
			}
		}
		stream.Finish(nil)
	}()
	return stream, nil
}
