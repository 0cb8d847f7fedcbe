package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/domain/repositories"
)

// AudioEncoding selects how synthesized audio reaches the caller
type AudioEncoding string

const (
	// EncodingInline returns a base64 data URL
	EncodingInline AudioEncoding = "inline"
	// EncodingFile saves the audio and returns its public reference
	EncodingFile AudioEncoding = "file"
	// EncodingStream returns raw base64 for an open streaming connection
	EncodingStream AudioEncoding = "stream"
)

func (e AudioEncoding) Valid() bool {
	switch e {
	case EncodingInline, EncodingFile, EncodingStream:
		return true
	}
	return false
}

// AudioReference is synthesized audio in the configured encoding. URL is set
// for inline and file encodings, Data always holds the raw bytes.
type AudioReference struct {
	Encoding AudioEncoding
	MimeType string
	URL      string
	Data     []byte
}

// Base64 returns the audio as standard base64 without a data URL prefix
func (r *AudioReference) Base64() string {
	return base64.StdEncoding.EncodeToString(r.Data)
}

// SynthesisConfig configures the synthesis stage
type SynthesisConfig struct {
	Encoding   AudioEncoding
	FilePrefix string
}

// SynthesisService converts reply text into one contiguous audio buffer
type SynthesisService struct {
	tts     repositories.TextToSpeech
	storage repositories.AudioStorage
	config  SynthesisConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewSynthesisService creates a new synthesis service. storage may be nil
// unless the encoding is EncodingFile.
func NewSynthesisService(tts repositories.TextToSpeech, storage repositories.AudioStorage, config SynthesisConfig, logger *zap.Logger) *SynthesisService {
	if config.FilePrefix == "" {
		config.FilePrefix = "response"
	}
	return &SynthesisService{
		tts:     tts,
		storage: storage,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Encoding returns the configured encoding
func (s *SynthesisService) Encoding() AudioEncoding {
	return s.config.Encoding
}

// Synthesize renders text with the given voice using the configured encoding
func (s *SynthesisService) Synthesize(ctx context.Context, text, voiceID, userID string) (*AudioReference, error) {
	return s.SynthesizeAs(ctx, text, voiceID, userID, s.config.Encoding)
}

// SynthesizeAs renders text using an explicit encoding. Errors are
// *SynthesisError and callers are expected to continue without audio.
func (s *SynthesisService) SynthesizeAs(ctx context.Context, text, voiceID, userID string, encoding AudioEncoding) (*AudioReference, error) {
	if text == "" {
		return nil, &SynthesisError{Err: errors.New("nothing to synthesize")}
	}

	stream, err := s.tts.ConvertTextToSpeech(ctx, text, voiceID)
	if err != nil {
		return nil, &SynthesisError{Err: err}
	}

	var buf bytes.Buffer
	for chunk := range stream.Chunks() {
		buf.Write(chunk)
	}
	if err := stream.Err(); err != nil {
		return nil, &SynthesisError{Err: err}
	}
	if buf.Len() == 0 {
		return nil, &SynthesisError{Err: errors.New("provider returned no audio")}
	}

	ref := &AudioReference{
		Encoding: encoding,
		MimeType: stream.MimeType(),
		Data:     buf.Bytes(),
	}

	switch encoding {
	case EncodingFile:
		if s.storage == nil {
			return nil, &SynthesisError{Err: errors.New("no audio storage configured")}
		}
		name := AudioFileName(s.config.FilePrefix, s.now(), userID, ref.MimeType)
		url, err := s.storage.Save(ctx, name, ref.Data)
		if err != nil {
			return nil, &SynthesisError{Err: fmt.Errorf("saving %s: %w", name, err)}
		}
		ref.URL = url
	case EncodingStream:
	default:
		ref.Encoding = EncodingInline
		ref.URL = "data:" + ref.MimeType + ";base64," + ref.Base64()
	}

	s.logger.Info("Synthesis completed",
		zap.String("voiceID", voiceID),
		zap.String("encoding", string(ref.Encoding)),
		zap.Int("audioSize", len(ref.Data)))
	return ref, nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// AudioFileName builds {prefix}_{unix millis}_{userID}.{ext}
func AudioFileName(prefix string, at time.Time, userID, mimeType string) string {
	return fmt.Sprintf("%s_%d_%s.%s",
		prefix, at.UnixMilli(), unsafeNameChars.ReplaceAllString(userID, ""), AudioExtension(mimeType))
}

// AudioExtension maps an audio MIME type to a file extension
func AudioExtension(mimeType string) string {
	switch mimeType {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/ogg", "audio/opus":
		return "ogg"
	case "audio/webm":
		return "webm"
	case "audio/pcm", "audio/l16":
		return "pcm"
	default:
		return "bin"
	}
}
