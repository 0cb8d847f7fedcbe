package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/domain/repositories"
)

// DefaultURLPrefix is the path the HTTP server serves the audio directory on
const DefaultURLPrefix = "/audio/"

// AudioStorage writes synthesized audio into a directory that the HTTP
// server exposes as static files
type AudioStorage struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

var _ repositories.AudioStorage = (*AudioStorage)(nil)

// NewAudioStorage creates the directory if needed. baseURL prefixes returned
// references; empty means DefaultURLPrefix.
func NewAudioStorage(dir, baseURL string, logger *zap.Logger) (*AudioStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}
	if baseURL == "" {
		baseURL = DefaultURLPrefix
	} else if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &AudioStorage{dir: dir, baseURL: baseURL, logger: logger}, nil
}

// Dir returns the directory files are written to
func (s *AudioStorage) Dir() string {
	return s.dir
}

// Save implements repositories.AudioStorage
func (s *AudioStorage) Save(ctx context.Context, name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid audio file name %q", name)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to move audio file into place: %w", err)
	}

	s.logger.Debug("Saved audio file", zap.String("file", name), zap.Int("bytes", len(data)))
	return s.baseURL + name, nil
}
