package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/domain/repositories"
)

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client *speech.Client
	logger *zap.Logger
}

// NewGoogleSpeechToText creates a client using application default credentials
func NewGoogleSpeechToText(ctx context.Context, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleSpeechToText{client: client, logger: logger}, nil
}

// Close releases the underlying gRPC connection
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

// TranscribeAudio recognizes one complete utterance with automatic punctuation
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (*repositories.Transcription, error) {
	encodingName := config.Encoding
	if encodingName == "" {
		encodingName = encodingForMimeType(config.MimeType)
	}
	encoding, err := getAudioEncoding(encodingName)
	if err != nil {
		return nil, err
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:                   encoding,
		LanguageCode:               config.Language,
		EnableAutomaticPunctuation: true,
	}
	if config.SampleRate > 0 {
		recognitionConfig.SampleRateHertz = int32(config.SampleRate)
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: recognitionConfig,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to recognize audio: %w", err)
	}
	if resp == nil {
		return nil, nil
	}

	result := transcriptionFromResults(resp.Results)
	g.logger.Debug("Google transcription",
		zap.Int("results", len(resp.Results)),
		zap.Float64("confidence", result.Confidence))
	return result, nil
}

// transcriptionFromResults joins the best alternative of each result. The
// confidence is the mean of the alternatives used.
func transcriptionFromResults(results []*speechpb.SpeechRecognitionResult) *repositories.Transcription {
	var parts []string
	var confidence float64
	for _, result := range results {
		if len(result.Alternatives) == 0 {
			continue
		}
		best := result.Alternatives[0]
		parts = append(parts, strings.TrimSpace(best.Transcript))
		confidence += float64(best.Confidence)
	}
	if len(parts) == 0 {
		return &repositories.Transcription{}
	}
	return &repositories.Transcription{
		Transcript: strings.Join(parts, " "),
		Confidence: confidence / float64(len(parts)),
	}
}

// encodingForMimeType maps container MIME types browsers record to
// recognition encodings
func encodingForMimeType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(base) {
	case "audio/webm":
		return "WEBM_OPUS"
	case "audio/ogg", "audio/opus":
		return "OGG_OPUS"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "LINEAR16"
	case "audio/flac", "audio/x-flac":
		return "FLAC"
	case "audio/amr":
		return "AMR"
	case "audio/mpeg", "audio/mp3":
		return "MP3"
	default:
		return "WEBM_OPUS"
	}
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	case "MP3":
		return speechpb.RecognitionConfig_MP3, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
