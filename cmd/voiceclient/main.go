// voiceclient sends recorded utterances to the streaming endpoint and prints
// the assistant's replies. It reconnects after drops; every reconnect is a new
// server session and resumes with the first unanswered file.
//
// Usage:
//
//	voiceclient -user user-1 question1.webm question2.webm
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/internal/websocket"
	"github.com/satriahrh/lexvoice/internal/wsclient"
	"github.com/satriahrh/lexvoice/usecase"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "streaming endpoint")
	userID := flag.String("user", "", "user id to talk as")
	outDir := flag.String("out", "audio_responses", "directory for streamed audio replies")
	audioWait := flag.Duration("audio-wait", 30*time.Second, "how long to wait for audio after a reply")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if *userID == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: voiceclient -user <id> <audio file>...")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	messages := make(chan *websocket.ServerMessage, 16)
	client := wsclient.New(wsclient.Config{URL: *serverURL, UserID: *userID}, logger)

	runErr := make(chan error, 1)
	go func() {
		runErr <- client.Run(ctx, func(msg *websocket.ServerMessage) {
			select {
			case messages <- msg:
			case <-ctx.Done():
			}
		})
	}()

	files := flag.Args()
	next := 0
	inFlight := false
	var audioTimer <-chan time.Time

	var send func()
	send = func() {
		audioTimer = nil
		inFlight = false
		if next >= len(files) {
			cancel()
			return
		}
		path := files[next]
		audio, err := os.ReadFile(path)
		if err != nil {
			logger.Error("Failed to read audio file", zap.String("file", path), zap.Error(err))
			next++
			send()
			return
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if err := client.SendAudio(audio, mimeType); err != nil {
			logger.Warn("Failed to send audio, waiting for reconnect", zap.Error(err))
			return
		}
		logger.Info("Sent utterance", zap.String("file", path), zap.Int("bytes", len(audio)))
		inFlight = true
	}
	advance := func() {
		next++
		send()
	}

	for {
		select {
		case err := <-runErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Connection closed", zap.Error(err))
				os.Exit(1)
			}
			return

		case <-audioTimer:
			logger.Warn("No audio for reply")
			advance()

		case msg := <-messages:
			switch msg.Type {
			case websocket.MessageTypeStatus:
				logger.Info(msg.Message, zap.String("sessionID", msg.SessionID))
				send()
			case websocket.MessageTypeTranscript:
				fmt.Printf("you: %s\n", msg.Text)
			case websocket.MessageTypeAssistantResponse:
				fmt.Printf("assistant: %s\n", msg.Text)
				audioTimer = time.After(*audioWait)
			case websocket.MessageTypeAudio:
				if err := saveAudio(*outDir, msg); err != nil {
					logger.Error("Failed to save audio", zap.Error(err))
				}
				advance()
			case websocket.MessageTypeError:
				logger.Warn("Server error", zap.String("message", msg.Message))
				if inFlight {
					advance()
				}
			}
		}
	}
}

// saveAudio writes streamed audio to outDir, or prints the reference for
// file and inline encodings
func saveAudio(outDir string, msg *websocket.ServerMessage) error {
	if msg.Data == "" {
		fmt.Printf("audio: %s\n", msg.URL)
		return nil
	}
	audio, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	name := usecase.AudioFileName("reply", time.Now(), "", msg.MimeType)
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return err
	}
	fmt.Printf("audio: %s\n", path)
	return nil
}
