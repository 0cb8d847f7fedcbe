package usecase

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/lexvoice/domain/repositories"
)

func TestTranscribe(t *testing.T) {
	providerErr := errors.New("deepgram: 400 bad audio")

	tests := []struct {
		name        string
		audio       []byte
		stt         *fakeSTT
		expected    string
		expectedErr error
	}{
		{
			name:     "transcript",
			audio:    []byte("audio"),
			stt:      &fakeSTT{result: &repositories.Transcription{Transcript: " What is bail? ", Confidence: 0.93}},
			expected: "What is bail?",
		},
		{
			name:     "silence is not an error",
			audio:    []byte("audio"),
			stt:      &fakeSTT{result: &repositories.Transcription{}},
			expected: "",
		},
		{
			name:        "provider error propagates",
			audio:       []byte("audio"),
			stt:         &fakeSTT{err: providerErr},
			expectedErr: providerErr,
		},
		{
			name:        "no result",
			audio:       []byte("audio"),
			stt:         &fakeSTT{},
			expectedErr: ErrNoResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewTranscriptionService(tt.stt, "en-US", zaptest.NewLogger(t))

			result, err := service.Transcribe(context.Background(), tt.audio, "audio/webm")

			if tt.expectedErr != nil {
				var transcriptionErr *TranscriptionError
				if !errors.As(err, &transcriptionErr) {
					t.Fatalf("Expected TranscriptionError, got %v", err)
				}
				if !errors.Is(err, tt.expectedErr) {
					t.Errorf("Expected error to wrap %v, got %v", tt.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if result.Transcript != tt.expected {
				t.Errorf("Expected transcript %q, got %q", tt.expected, result.Transcript)
			}
		})
	}
}

func TestTranscribeDoesNotRetry(t *testing.T) {
	stt := &fakeSTT{err: errors.New("timeout")}
	service := NewTranscriptionService(stt, "en-US", zaptest.NewLogger(t))

	if _, err := service.Transcribe(context.Background(), []byte("audio"), ""); err == nil {
		t.Fatal("Expected error")
	}
	if stt.calls != 1 {
		t.Errorf("Expected 1 provider call, got %d", stt.calls)
	}
}

func TestTranscribeRejectsEmptyAudio(t *testing.T) {
	stt := &fakeSTT{}
	service := NewTranscriptionService(stt, "en-US", zaptest.NewLogger(t))

	_, err := service.Transcribe(context.Background(), nil, "")
	var transcriptionErr *TranscriptionError
	if !errors.As(err, &transcriptionErr) {
		t.Errorf("Expected TranscriptionError, got %v", err)
	}
	if stt.calls != 0 {
		t.Errorf("Expected no provider call, got %d", stt.calls)
	}
}
