package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/domain/repositories"
)

// streamResponse executes req and pumps the response body into stream in
// chunkSize pieces. It always finishes the stream.
func streamResponse(ctx context.Context, client *http.Client, req *http.Request, stream *repositories.AudioStream, chunkSize int, provider string, logger *zap.Logger) {
	resp, err := client.Do(req)
	if err != nil {
		stream.Finish(fmt.Errorf("%s: failed to execute HTTP request: %w", provider, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("%s API returned error %d: %s", provider, resp.StatusCode, string(errorBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			err = fmt.Errorf("%w: %v", repositories.ErrRateLimited, err)
		}
		stream.Finish(err)
		return
	}

	buffer := make([]byte, chunkSize)
	totalBytes := 0
	chunkCount := 0
	for {
		n, err := resp.Body.Read(buffer)
		if n > 0 {
			totalBytes += n
			chunkCount++

			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			if !stream.Send(ctx, chunk) {
				logger.Warn("Context cancelled while sending audio chunk", zap.String("provider", provider))
				stream.Finish(ctx.Err())
				return
			}
		}

		if err == io.EOF {
			logger.Debug("Finished streaming audio data",
				zap.String("provider", provider),
				zap.Int("totalChunks", chunkCount),
				zap.Int("totalBytes", totalBytes))
			stream.Finish(nil)
			return
		}
		if err != nil {
			stream.Finish(fmt.Errorf("%s: error reading response body: %w", provider, err))
			return
		}
	}
}

// mimeTypeForFormat maps provider output formats like mp3_44100_128 or
// linear16 to a MIME type
func mimeTypeForFormat(format string) string {
	switch {
	case strings.HasPrefix(format, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(format, "pcm"), format == "linear16":
		return "audio/pcm"
	case format == "wav":
		return "audio/wav"
	case format == "opus", format == "ogg":
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}
