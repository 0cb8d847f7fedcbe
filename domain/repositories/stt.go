package repositories

import "context"

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// TranscribeAudio converts a complete audio buffer to text. An empty
	// transcript with a nil error means no speech was detected.
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (*Transcription, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
	MimeType   string `json:"mime_type"`
}

// Transcription is the best alternative returned by the provider
type Transcription struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}
