package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/lexvoice/adapters/filestore"
	"github.com/satriahrh/lexvoice/adapters/llm"
	"github.com/satriahrh/lexvoice/adapters/memory"
	"github.com/satriahrh/lexvoice/adapters/tts"
	"github.com/satriahrh/lexvoice/domain/entities"
	"github.com/satriahrh/lexvoice/domain/repositories"
	"github.com/satriahrh/lexvoice/internal/metrics"
	"github.com/satriahrh/lexvoice/internal/websocket"
	"github.com/satriahrh/lexvoice/usecase"
)

type stubSTT struct {
	err    error
	silent bool
}

func (s *stubSTT) TranscribeAudio(ctx context.Context, audio []byte, config repositories.AudioConfig) (*repositories.Transcription, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.silent {
		return &repositories.Transcription{}, nil
	}
	return &repositories.Transcription{Transcript: " What is bail? ", Confidence: 0.92}, nil
}

func setupTestServer(t *testing.T) (*echo.Echo, *stubSTT) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	users := memory.NewUserRepository()
	err := users.Upsert(context.Background(), &entities.User{
		ID:   "user-1",
		Name: "Asha",
		Preferences: entities.UserPreferences{
			Jurisdiction:      "US",
			ConversationStyle: entities.StyleCasual,
		},
	})
	if err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}

	audioDir := filepath.Join(t.TempDir(), "audio")
	storage, err := filestore.NewAudioStorage(audioDir, "", logger)
	if err != nil {
		t.Fatalf("Failed to create audio storage: %v", err)
	}

	stt := &stubSTT{}
	assistant := usecase.NewVoiceAssistant(
		usecase.NewTranscriptionService(stt, "en-US", logger),
		usecase.NewChatService(llm.NewMockGeminiClient(), usecase.DefaultChatConfig(), logger),
		usecase.NewSynthesisService(tts.NewMockTextToSpeech(logger), storage, usecase.SynthesisConfig{Encoding: usecase.EncodingFile}, logger),
		usecase.NewConversationService(users, memory.NewConversationRepository(), entities.DefaultUserContext(), logger),
		usecase.PipelineConfig{RESTMode: usecase.HistoryAware, MaxSpeechChars: 2000, CutSpeechChars: 1900},
		logger,
	)

	hub := websocket.NewHub(assistant, websocket.Config{}, zap.NewNop())

	e := echo.New()
	InitRoutes(e, assistant, hub, Options{AudioDir: audioDir, Metrics: metrics.New("").Handler()}, logger)
	return e, stt
}

func doJSON(t *testing.T, e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func doUpload(t *testing.T, e *echo.Echo, path string, audio []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if audio != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="audio"; filename="recording.webm"`)
		header.Set("Content-Type", "audio/webm")
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(audio)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := doJSON(t, e, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["status"] != "ok" || body["service"] != "lexvoice" {
		t.Errorf("Unexpected health body %v", body)
	}
}

func TestMetricsRoute(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := doJSON(t, e, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "lexvoice_streaming_sessions_active") {
		t.Errorf("Expected pipeline metrics in exposition")
	}
}

func TestTranscribe(t *testing.T) {
	tests := []struct {
		name       string
		audio      []byte
		sttErr     error
		wantStatus int
		wantError  string
	}{
		{name: "success", audio: []byte("voice"), wantStatus: http.StatusOK},
		{name: "missing audio", wantStatus: http.StatusBadRequest, wantError: "missing_audio"},
		{name: "empty audio", audio: []byte{}, wantStatus: http.StatusBadRequest, wantError: "missing_audio"},
		{name: "provider failure", audio: []byte("voice"), sttErr: errors.New("quota"), wantStatus: http.StatusBadGateway, wantError: "transcription_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, stt := setupTestServer(t)
			stt.err = tt.sttErr

			rec := doUpload(t, e, "/api/conversations/transcribe", tt.audio, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantError != "" {
				if body := decode[ErrorResponse](t, rec); body.Error != tt.wantError {
					t.Errorf("Expected error %s, got %+v", tt.wantError, body)
				}
				return
			}
			body := decode[TranscribeResponse](t, rec)
			if body.Transcript != "What is bail?" {
				t.Errorf("Expected trimmed transcript, got %q", body.Transcript)
			}
		})
	}
}

func TestProcessQuery(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := doJSON(t, e, http.MethodPost, "/api/conversations/process-query",
		ProcessQueryRequest{Transcript: "What is bail?", UserID: "user-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	first := decode[QueryResponse](t, rec)
	if !strings.Contains(first.Response, "What is bail?") {
		t.Errorf("Expected reply about the question, got %q", first.Response)
	}
	if first.AudioURL == nil || !strings.HasPrefix(*first.AudioURL, "/audio/response_") {
		t.Fatalf("Expected file audio url, got %v", first.AudioURL)
	}
	if strings.Contains(rec.Body.String(), `"transcript"`) {
		t.Errorf("Expected no transcript echo on process-query")
	}

	audio := doJSON(t, e, http.MethodGet, *first.AudioURL, nil)
	if audio.Code != http.StatusOK || audio.Body.Len() == 0 {
		t.Errorf("Expected saved audio to be served, got %d", audio.Code)
	}

	rec = doJSON(t, e, http.MethodPost, "/api/conversations/process-query",
		ProcessQueryRequest{Transcript: "And for a minor?", UserID: "user-1"})
	second := decode[QueryResponse](t, rec)
	if second.ConversationID != first.ConversationID {
		t.Errorf("Expected the active conversation to be reused")
	}

	rec = doJSON(t, e, http.MethodGet, "/api/conversations/"+first.ConversationID, nil)
	conversation := decode[entities.Conversation](t, rec)
	if len(conversation.Turns) != 4 {
		t.Fatalf("Expected 4 stored turns, got %d", len(conversation.Turns))
	}
	if conversation.Turns[2].Content != "And for a minor?" {
		t.Errorf("Expected turns in order, got %q", conversation.Turns[2].Content)
	}
}

func TestProcessQueryErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantError  string
	}{
		{name: "missing transcript", body: ProcessQueryRequest{UserID: "user-1"}, wantStatus: http.StatusBadRequest, wantError: "missing_fields"},
		{name: "missing user", body: ProcessQueryRequest{Transcript: "hi"}, wantStatus: http.StatusBadRequest, wantError: "missing_fields"},
		{name: "unknown user", body: ProcessQueryRequest{Transcript: "hi", UserID: "ghost"}, wantStatus: http.StatusNotFound, wantError: "user_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := setupTestServer(t)
			rec := doJSON(t, e, http.MethodPost, "/api/conversations/process-query", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if body := decode[ErrorResponse](t, rec); body.Error != tt.wantError {
				t.Errorf("Expected error %s, got %+v", tt.wantError, body)
			}
		})
	}
}

func TestVoiceQuery(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := doUpload(t, e, "/api/conversations/voice-query", []byte("voice"), map[string]string{"userId": "user-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode[VoiceQueryResponse](t, rec)
	if body.Transcript != "What is bail?" {
		t.Errorf("Expected transcript in response, got %q", body.Transcript)
	}
	if body.Response == "" || body.AudioURL == nil {
		t.Errorf("Expected reply with audio, got %+v", body)
	}

	rec = doUpload(t, e, "/api/conversations/voice-query", []byte("voice"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without userId, got %d", rec.Code)
	}
}

func TestVoiceQuerySilenceKeepsTranscript(t *testing.T) {
	e, stt := setupTestServer(t)
	stt.silent = true

	rec := doUpload(t, e, "/api/conversations/voice-query", []byte("voice"), map[string]string{"userId": "user-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode[map[string]any](t, rec)
	transcript, ok := body["transcript"]
	if !ok {
		t.Fatalf("Expected transcript key in %s", rec.Body.String())
	}
	if transcript != "" {
		t.Errorf("Expected empty transcript, got %v", transcript)
	}
	if body["response"] == "" {
		t.Errorf("Expected a reply to silence")
	}
}

func TestConversationRoutes(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := doJSON(t, e, http.MethodPost, "/api/conversations/process-query",
		ProcessQueryRequest{Transcript: "What is bail?", UserID: "user-1"})
	conversationID := decode[QueryResponse](t, rec).ConversationID

	rec = doJSON(t, e, http.MethodGet, "/api/conversations/user/user-1", nil)
	list := decode[[]entities.Conversation](t, rec)
	if len(list) != 1 || list[0].ID != conversationID {
		t.Fatalf("Expected the one conversation, got %+v", list)
	}

	rec = doJSON(t, e, http.MethodPut, "/api/conversations/"+conversationID+"/archive", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	archived := decode[ArchiveResponse](t, rec)
	if archived.Conversation.Status != entities.ConversationStatusArchived {
		t.Errorf("Expected archived status, got %s", archived.Conversation.Status)
	}

	rec = doJSON(t, e, http.MethodPost, "/api/conversations/process-query",
		ProcessQueryRequest{Transcript: "New matter", UserID: "user-1"})
	if next := decode[QueryResponse](t, rec); next.ConversationID == conversationID {
		t.Errorf("Expected a new conversation after archiving")
	}

	rec = doJSON(t, e, http.MethodGet, "/api/conversations/user/user-1", nil)
	if list := decode[[]entities.Conversation](t, rec); len(list) != 2 {
		t.Errorf("Expected 2 conversations, got %d", len(list))
	}

	rec = doJSON(t, e, http.MethodGet, "/api/conversations/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a missing conversation, got %d", rec.Code)
	}
	rec = doJSON(t, e, http.MethodPut, "/api/conversations/missing/archive", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 archiving a missing conversation, got %d", rec.Code)
	}
}

func TestGetUser(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := doJSON(t, e, http.MethodGet, "/api/users/user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	user := decode[entities.User](t, rec)
	if user.Preferences.Jurisdiction != "US" {
		t.Errorf("Expected stored preferences, got %+v", user.Preferences)
	}

	rec = doJSON(t, e, http.MethodGet, "/api/users/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestWebSocketRequiresUserID(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := doJSON(t, e, http.MethodGet, "/ws", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if body := decode[ErrorResponse](t, rec); body.Error != "missing_user_id" {
		t.Errorf("Expected missing_user_id, got %+v", body)
	}
}
