package repositories

import (
	"context"
	"sync"
)

type TextToSpeech interface {
	// ConvertTextToSpeech starts synthesis and streams audio chunks in order.
	ConvertTextToSpeech(ctx context.Context, text string, voiceID string) (*AudioStream, error)
}

// AudioStream carries synthesized audio chunks from a provider. The producer
// calls Finish exactly once; Err is meaningful after Chunks is closed.
type AudioStream struct {
	chunks   chan []byte
	mimeType string

	mu  sync.Mutex
	err error
}

// NewAudioStream creates a stream with the given MIME type and channel buffer
func NewAudioStream(mimeType string, buffer int) *AudioStream {
	return &AudioStream{
		chunks:   make(chan []byte, buffer),
		mimeType: mimeType,
	}
}

// Chunks returns the channel of audio chunks
func (s *AudioStream) Chunks() <-chan []byte {
	return s.chunks
}

// MimeType returns the content type of the audio
func (s *AudioStream) MimeType() string {
	return s.mimeType
}

// Send pushes a chunk, returning false when ctx is done first
func (s *AudioStream) Send(ctx context.Context, chunk []byte) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// Finish records the terminal error, if any, and closes the chunk channel
func (s *AudioStream) Finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.chunks)
}

// Err returns the error the producer finished with
func (s *AudioStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
