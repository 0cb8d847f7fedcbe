package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/adapters/filestore"
	"github.com/satriahrh/lexvoice/internal/api"
	"github.com/satriahrh/lexvoice/internal/config"
	"github.com/satriahrh/lexvoice/internal/metrics"
	"github.com/satriahrh/lexvoice/internal/websocket"
	"github.com/satriahrh/lexvoice/usecase"
)

const (
	shutdownTimeout = 10 * time.Second
	// bodyLimit covers a base64 websocket frame or a multipart upload
	bodyLimit = "32M"
)

func main() {
	configFile := flag.String("config", "", "path to config file (e.g. configs/lexvoice.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx := context.Background()

	// Storage
	store, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.Close()
	if err := seedUsers(ctx, store.users, cfg.Users, logger); err != nil {
		logger.Fatal("Failed to seed users", zap.Error(err))
	}

	// Providers
	speechToText, closeSTT, err := newSpeechToText(ctx, cfg.STT, logger)
	if err != nil {
		logger.Fatal("Failed to initialize speech-to-text", zap.Error(err))
	}
	defer closeSTT()

	textToSpeech, err := newTextToSpeech(cfg.TTS, cfg.User.DefaultVoice, logger)
	if err != nil {
		logger.Fatal("Failed to initialize text-to-speech", zap.Error(err))
	}

	llmService, err := newLanguageModel(ctx, cfg.LLM, logger)
	if err != nil {
		logger.Fatal("Failed to initialize language model", zap.Error(err))
	}

	// Audio files and their janitor
	encoding := usecase.AudioEncoding(cfg.Synthesis.Encoding)
	audioStorage, err := filestore.NewAudioStorage(cfg.Synthesis.AudioDir, cfg.Synthesis.PublicBaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to prepare audio directory", zap.Error(err))
	}
	var janitor *filestore.Janitor
	if encoding == usecase.EncodingFile {
		janitor = filestore.NewJanitor(cfg.Synthesis.AudioDir, cfg.Synthesis.FileTTL, cfg.Synthesis.CleanupInterval, logger)
		janitor.Start()
	}

	// Usecase services
	pipelineMetrics := metrics.New("")
	assistant := usecase.NewVoiceAssistant(
		usecase.NewTranscriptionService(speechToText, cfg.STT.Language, logger),
		usecase.NewChatService(llmService, chatConfig(cfg.LLM), logger),
		usecase.NewSynthesisService(textToSpeech, audioStorage, usecase.SynthesisConfig{
			Encoding:   encoding,
			FilePrefix: cfg.Synthesis.FilePrefix,
		}, logger),
		usecase.NewConversationService(store.users, store.conversations, cfg.User.Context(), logger),
		usecase.PipelineConfig{
			RESTMode:       usecase.GenerationMode(cfg.LLM.Mode),
			StreamingMode:  usecase.GenerationMode(cfg.Streaming.GenerationMode),
			MaxSpeechChars: cfg.Synthesis.MaxChars,
			CutSpeechChars: cfg.Synthesis.CutChars,
		},
		logger,
	).WithMetrics(pipelineMetrics)

	// WebSocket hub
	hub := websocket.NewHub(assistant, websocket.Config{
		BusyPolicy: websocket.BusyPolicy(cfg.Streaming.BusyPolicy),
		QueueSize:  cfg.Streaming.QueueSize,
	}, logger).WithMetrics(pipelineMetrics)
	go hub.Run()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit(bodyLimit))

	api.InitRoutes(e, assistant, hub, api.Options{
		AudioDir:  cfg.Synthesis.AudioDir,
		PublicDir: cfg.Server.PublicDir,
		Metrics:   pipelineMetrics.Handler(),
	}, logger)

	port := strconv.Itoa(cfg.Server.Port)
	go func() {
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", port),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("stt", cfg.STT.Provider),
		zap.String("tts", cfg.TTS.Provider),
		zap.String("llm", cfg.LLM.Provider),
		zap.String("encoding", string(encoding)))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Streaming sessions flush their buffers before the stores close
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Streaming sessions did not close in time", zap.Error(err))
	}
	hub.Stop()
	if janitor != nil {
		janitor.Stop()
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zapConfig.Level = level
	}
	return zapConfig.Build()
}

func chatConfig(cfg config.LLMConfig) usecase.ChatConfig {
	chat := usecase.DefaultChatConfig()
	chat.Generation.MaxOutputTokens = cfg.MaxOutputTokens
	chat.Generation.Temperature = cfg.Temperature
	chat.Generation.TopP = cfg.TopP
	chat.Generation.TopK = cfg.TopK
	chat.MaxAttempts = cfg.MaxAttempts
	chat.BackoffStep = cfg.BackoffStep
	return chat
}
