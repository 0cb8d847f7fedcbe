package api

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/domain/repositories"
	"github.com/satriahrh/lexvoice/internal/websocket"
	"github.com/satriahrh/lexvoice/usecase"
)

// maxAudioUpload bounds a multipart audio upload
const maxAudioUpload = 25 << 20

// Options carries the optional parts of the HTTP surface
type Options struct {
	// AudioDir is served under /audio when set
	AudioDir string
	// PublicDir is served under / when it exists
	PublicDir string
	// Metrics is served under /metrics when set
	Metrics http.Handler
}

type handler struct {
	assistant *usecase.VoiceAssistant
	logger    *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, assistant *usecase.VoiceAssistant, hub *websocket.Hub, opts Options, logger *zap.Logger) {
	h := &handler{assistant: assistant, logger: logger}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "lexvoice",
		})
	})

	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}
	if opts.AudioDir != "" {
		e.Static("/audio", opts.AudioDir)
	}
	if opts.PublicDir != "" {
		if info, err := os.Stat(opts.PublicDir); err == nil && info.IsDir() {
			e.Static("/", opts.PublicDir)
		}
	}

	conversations := e.Group("/api/conversations")
	conversations.POST("/transcribe", h.transcribe)
	conversations.POST("/process-query", h.processQuery)
	conversations.POST("/voice-query", h.voiceQuery)
	conversations.GET("/user/:userId", h.listConversations)
	conversations.GET("/:conversationId", h.getConversation)
	conversations.PUT("/:conversationId/archive", h.archiveConversation)

	e.GET("/api/users/:userId", h.getUser)

	// Streaming endpoint, one session per connection
	e.GET("/ws", func(c echo.Context) error {
		userID := c.QueryParam("userId")
		if userID == "" {
			logger.Warn("WebSocket connection rejected: missing userId")
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "missing_user_id",
				Message: "userId query parameter is required",
			})
		}
		return websocket.HandleWebSocket(hub, c, userID)
	})
}

// transcribe is the first phase of the REST flow: audio in, transcript out
func (h *handler) transcribe(c echo.Context) error {
	audio, mimeType, err := readAudio(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_audio",
			Message: err.Error(),
		})
	}

	result, err := h.assistant.Transcribe(c.Request().Context(), audio, mimeType)
	if err != nil {
		return h.failure(c, err)
	}

	return c.JSON(http.StatusOK, TranscribeResponse{
		Transcript: result.Transcript,
		Confidence: result.Confidence,
	})
}

// processQuery is the second phase of the REST flow: transcript in, reply
// and audio reference out
func (h *handler) processQuery(c echo.Context) error {
	var req ProcessQueryRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Warn("Failed to bind process query request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.Transcript == "" || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "transcript and userId are required",
		})
	}

	result, err := h.assistant.ProcessQuery(c.Request().Context(), req.UserID, req.Transcript)
	if err != nil {
		return h.failure(c, err)
	}
	return c.JSON(http.StatusOK, QueryResponse{
		ConversationID: result.ConversationID,
		Response:       result.Response,
		AudioURL:       result.AudioURL(),
	})
}

// voiceQuery transcribes and answers in a single request
func (h *handler) voiceQuery(c echo.Context) error {
	userID := c.FormValue("userId")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "userId is required",
		})
	}
	audio, mimeType, err := readAudio(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_audio",
			Message: err.Error(),
		})
	}

	result, err := h.assistant.VoiceQuery(c.Request().Context(), userID, audio, mimeType)
	if err != nil {
		return h.failure(c, err)
	}
	return c.JSON(http.StatusOK, VoiceQueryResponse{
		ConversationID: result.ConversationID,
		Transcript:     result.Transcript,
		Response:       result.Response,
		AudioURL:       result.AudioURL(),
	})
}

func (h *handler) listConversations(c echo.Context) error {
	conversations, err := h.assistant.Conversations().ListConversations(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return h.failure(c, err)
	}
	return c.JSON(http.StatusOK, conversations)
}

func (h *handler) getConversation(c echo.Context) error {
	conversation, err := h.assistant.Conversations().GetConversation(c.Request().Context(), c.Param("conversationId"))
	if err != nil {
		return h.failure(c, err)
	}
	return c.JSON(http.StatusOK, conversation)
}

func (h *handler) archiveConversation(c echo.Context) error {
	conversation, err := h.assistant.Conversations().ArchiveConversation(c.Request().Context(), c.Param("conversationId"))
	if err != nil {
		return h.failure(c, err)
	}
	return c.JSON(http.StatusOK, ArchiveResponse{
		Message:      "Conversation archived",
		Conversation: conversation,
	})
}

func (h *handler) getUser(c echo.Context) error {
	user, _, err := h.assistant.Conversations().LoadUser(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return h.failure(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// failure maps pipeline errors to responses
func (h *handler) failure(c echo.Context, err error) error {
	var transcriptionErr *usecase.TranscriptionError
	switch {
	case errors.As(err, &transcriptionErr):
		h.logger.Warn("Transcription failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "transcription_failed",
			Message: transcriptionErr.Error(),
		})
	case errors.Is(err, usecase.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "user_not_found",
			Message: "User not found",
		})
	case errors.Is(err, repositories.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Conversation not found",
		})
	default:
		h.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "processing_failed",
			Message: "Failed to process request",
		})
	}
}

// readAudio reads the "audio" multipart file
func readAudio(c echo.Context) ([]byte, string, error) {
	file, err := c.FormFile("audio")
	if err != nil {
		return nil, "", errors.New("no audio file provided")
	}
	if file.Size > maxAudioUpload {
		return nil, "", errors.New("audio file is too large")
	}

	src, err := file.Open()
	if err != nil {
		return nil, "", err
	}
	defer src.Close()

	audio, err := io.ReadAll(io.LimitReader(src, maxAudioUpload))
	if err != nil {
		return nil, "", err
	}
	if len(audio) == 0 {
		return nil, "", errors.New("audio file is empty")
	}
	return audio, file.Header.Get("Content-Type"), nil
}
