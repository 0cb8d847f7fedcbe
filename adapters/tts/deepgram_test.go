package tts

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestDeepgramTTS_ConvertTextToSpeech(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("model") != "aura-luna-en" {
			t.Errorf("Expected voice as model, got %q", r.URL.Query().Get("model"))
		}
		if r.Header.Get("Authorization") != "Token dg-key" {
			t.Errorf("Expected token auth, got %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"text":"Hello."}` {
			t.Errorf("Expected JSON text body, got %s", body)
		}
		w.Write([]byte("mp3-audio"))
	}))
	defer server.Close()

	tts, err := NewDeepgramTTS(DeepgramConfig{APIKey: "dg-key", BaseURL: server.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create DeepgramTTS: %v", err)
	}

	stream, err := tts.ConvertTextToSpeech(context.Background(), "Hello.", "aura-luna-en")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if received := drain(t, stream); !bytes.Equal(received, []byte("mp3-audio")) {
		t.Errorf("Expected audio body, got %q", received)
	}
	if stream.Err() != nil {
		t.Errorf("Expected no stream error, got %v", stream.Err())
	}
}

func TestNewDeepgramTTSRequiresKey(t *testing.T) {
	if _, err := NewDeepgramTTS(DeepgramConfig{}, zaptest.NewLogger(t)); err == nil {
		t.Error("Expected error when API key is not set")
	}
}

func TestMockTextToSpeech(t *testing.T) {
	tts := NewMockTextToSpeech(zaptest.NewLogger(t))

	stream, err := tts.ConvertTextToSpeech(context.Background(), string(make([]byte, 250)), "any")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	received := drain(t, stream)
	if len(received) != 3*len(silentFrame) {
		t.Errorf("Expected 3 frames, got %d bytes", len(received))
	}
}

func TestMimeTypeForFormat(t *testing.T) {
	tests := map[string]string{
		"mp3_44100_128": "audio/mpeg",
		"pcm_24000":     "audio/pcm",
		"linear16":      "audio/pcm",
		"opus":          "audio/ogg",
		"":              "audio/mpeg",
	}
	for format, expected := range tests {
		if got := mimeTypeForFormat(format); got != expected {
			t.Errorf("Expected %s for %q, got %s", expected, format, got)
		}
	}
}
