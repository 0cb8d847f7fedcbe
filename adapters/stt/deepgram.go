package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/domain/repositories"
)

const (
	deepgramBaseURL      = "https://api.deepgram.com/v1/listen"
	deepgramDefaultModel = "nova-2"
	deepgramTimeout      = 30 * time.Second
)

// DeepgramConfig holds configuration for Deepgram prerecorded transcription
type DeepgramConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// DeepgramSpeechToText implements SpeechToText using Deepgram's REST API
type DeepgramSpeechToText struct {
	config     DeepgramConfig
	httpClient *http.Client
	logger     *zap.Logger
}

type deepgramResponse struct {
	Results *struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// NewDeepgramSpeechToText creates a new Deepgram transcription client
func NewDeepgramSpeechToText(config DeepgramConfig, logger *zap.Logger) (*DeepgramSpeechToText, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Deepgram API key is required")
	}
	if config.Model == "" {
		config.Model = deepgramDefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = deepgramBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = deepgramTimeout
	}

	return &DeepgramSpeechToText{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// TranscribeAudio sends the utterance with smart formatting and punctuation
// enabled
func (d *DeepgramSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (*repositories.Transcription, error) {
	query := url.Values{}
	query.Set("model", d.config.Model)
	query.Set("smart_format", "true")
	query.Set("punctuate", "true")
	if config.Language != "" {
		query.Set("language", config.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.BaseURL+"?"+query.Encode(), bytes.NewReader(audioData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.config.APIKey)
	contentType := config.MimeType
	if contentType == "" {
		contentType = "audio/webm"
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("deepgram: %w: %s", repositories.ErrRateLimited, string(body))
		}
		return nil, fmt.Errorf("deepgram API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var parsed deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	// A reply without a channel or alternative is not silence
	if parsed.Results == nil || len(parsed.Results.Channels) == 0 ||
		len(parsed.Results.Channels[0].Alternatives) == 0 {
		return nil, nil
	}

	best := parsed.Results.Channels[0].Alternatives[0]
	result := &repositories.Transcription{
		Transcript: best.Transcript,
		Confidence: best.Confidence,
	}

	d.logger.Debug("Deepgram transcription",
		zap.String("model", d.config.Model),
		zap.Float64("confidence", result.Confidence))
	return result, nil
}
