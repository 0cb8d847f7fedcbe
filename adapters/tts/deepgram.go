package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/domain/repositories"
)

const (
	deepgramSpeakURL     = "https://api.deepgram.com/v1/speak"
	deepgramDefaultVoice = "aura-asteria-en"
	deepgramEncoding     = "mp3"
)

// DeepgramConfig holds configuration for Deepgram Aura synthesis
type DeepgramConfig struct {
	APIKey    string
	BaseURL   string
	VoiceID   string
	ChunkSize int
}

// DeepgramTTS implements TextToSpeech using Deepgram's speak endpoint. The
// voice id doubles as the Aura model name.
type DeepgramTTS struct {
	config DeepgramConfig
	client *http.Client
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*DeepgramTTS)(nil)

// NewDeepgramTTS creates a new Deepgram TTS instance
func NewDeepgramTTS(config DeepgramConfig, logger *zap.Logger) (*DeepgramTTS, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Deepgram API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = deepgramSpeakURL
	}
	if config.VoiceID == "" {
		config.VoiceID = deepgramDefaultVoice
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaultChunkSize
	}

	return &DeepgramTTS{
		config: config,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}, nil
}

// ConvertTextToSpeech streams MP3 audio for text spoken by voiceID
func (d *DeepgramTTS) ConvertTextToSpeech(ctx context.Context, text string, voiceID string) (*repositories.AudioStream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	if voiceID == "" {
		voiceID = d.config.VoiceID
	}

	requestBody, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	query := url.Values{}
	query.Set("model", voiceID)
	query.Set("encoding", deepgramEncoding)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.BaseURL+"?"+query.Encode(), bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+d.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	d.logger.Info("Converting text to speech",
		zap.Int("textLength", len(text)),
		zap.String("voiceID", voiceID))

	stream := repositories.NewAudioStream("audio/mpeg", 10)
	go streamResponse(ctx, d.client, httpReq, stream, d.config.ChunkSize, "deepgram", d.logger)
	return stream, nil
}
