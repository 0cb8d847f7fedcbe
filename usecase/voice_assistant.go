package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/domain/entities"
	"github.com/satriahrh/lexvoice/domain/repositories"
)

// Transport labels used in turn metrics
const (
	TransportREST      = "rest"
	TransportWebsocket = "websocket"
)

// Turn outcomes used in turn metrics
const (
	OutcomeOK                 = "ok"
	OutcomeNoAudio            = "no_audio"
	OutcomeTranscriptionError = "transcription_error"
	OutcomeUserNotFound       = "user_not_found"
	OutcomeCancelled          = "cancelled"
	OutcomeError              = "error"
)

// PipelineConfig configures how a turn flows through the stages
type PipelineConfig struct {
	RESTMode       GenerationMode
	StreamingMode  GenerationMode
	MaxSpeechChars int
	CutSpeechChars int
}

// QueryResult is the outcome of a request-scoped turn. Audio is nil when
// synthesis failed.
type QueryResult struct {
	ConversationID string
	Transcript     string
	Response       string
	Audio          *AudioReference
}

// AudioURL returns the audio reference for REST callers, or nil
func (r *QueryResult) AudioURL() *string {
	if r.Audio == nil || r.Audio.URL == "" {
		return nil
	}
	url := r.Audio.URL
	return &url
}

// TurnEmitter receives the outputs of a streaming turn in order. Audio is
// the last call of a completed turn and receives nil when synthesis failed.
type TurnEmitter interface {
	Transcript(text string) error
	AssistantResponse(text string) error
	Audio(audio *AudioReference) error
}

// VoiceAssistant runs turns through transcription, generation, voice
// formatting, truncation and synthesis, and records them in the
// conversation
type VoiceAssistant struct {
	transcription *TranscriptionService
	chat          *ChatService
	synthesis     *SynthesisService
	conversations *ConversationService
	config        PipelineConfig
	metrics       MetricsRecorder
	logger        *zap.Logger
}

// NewVoiceAssistant wires the pipeline stages together
func NewVoiceAssistant(
	transcription *TranscriptionService,
	chat *ChatService,
	synthesis *SynthesisService,
	conversations *ConversationService,
	config PipelineConfig,
	logger *zap.Logger,
) *VoiceAssistant {
	if !config.RESTMode.Valid() {
		config.RESTMode = HistoryAware
	}
	if !config.StreamingMode.Valid() {
		config.StreamingMode = SingleShot
	}
	return &VoiceAssistant{
		transcription: transcription,
		chat:          chat,
		synthesis:     synthesis,
		conversations: conversations,
		config:        config,
		metrics:       nopRecorder{},
		logger:        logger,
	}
}

// WithMetrics attaches a recorder to the pipeline
func (a *VoiceAssistant) WithMetrics(m MetricsRecorder) *VoiceAssistant {
	if m != nil {
		a.metrics = m
		a.chat.WithMetrics(m)
	}
	return a
}

// Conversations exposes the session manager to transports
func (a *VoiceAssistant) Conversations() *ConversationService {
	return a.conversations
}

// Transcribe is the stateless first phase of the REST flow
func (a *VoiceAssistant) Transcribe(ctx context.Context, audio []byte, mimeType string) (*repositories.Transcription, error) {
	start := time.Now()
	result, err := a.transcription.Transcribe(ctx, audio, mimeType)
	a.metrics.ObserveStage(StageTranscription, time.Since(start))
	if err != nil {
		a.metrics.Turn(TransportREST, OutcomeTranscriptionError)
	}
	return result, err
}

// ProcessQuery answers a transcript for a user and records both turns in the
// user's active conversation
func (a *VoiceAssistant) ProcessQuery(ctx context.Context, userID, transcript string) (*QueryResult, error) {
	start := time.Now()
	_, userCtx, err := a.conversations.LoadUser(ctx, userID)
	if err != nil {
		a.recordFailure(TransportREST, err)
		return nil, err
	}
	return a.processQuery(ctx, userID, userCtx, entities.NewTurn(entities.RoleUser, transcript), start)
}

// VoiceQuery transcribes audio and answers it in one call
func (a *VoiceAssistant) VoiceQuery(ctx context.Context, userID string, audio []byte, mimeType string) (*QueryResult, error) {
	start := time.Now()
	_, userCtx, err := a.conversations.LoadUser(ctx, userID)
	if err != nil {
		a.recordFailure(TransportREST, err)
		return nil, err
	}

	transcription, err := a.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return nil, err
	}

	userTurn := entities.NewTurn(entities.RoleUser, transcription.Transcript).
		WithConfidence(transcription.Confidence)
	return a.processQuery(ctx, userID, userCtx, userTurn, start)
}

func (a *VoiceAssistant) processQuery(ctx context.Context, userID string, userCtx entities.UserContext, userTurn entities.Turn, start time.Time) (*QueryResult, error) {
	conversation, err := a.conversations.ActiveConversation(ctx, userID)
	if err != nil {
		a.recordFailure(TransportREST, err)
		return nil, err
	}

	history := append(conversation.History(), userTurn)
	response := a.generate(ctx, a.config.RESTMode, history, userCtx)

	encoding := a.synthesis.Encoding()
	if encoding == EncodingStream {
		encoding = EncodingInline
	}
	audio := a.synthesize(ctx, response, userCtx.VoiceID, userID, encoding)

	assistantTurn := entities.NewTurn(entities.RoleAssistant, response).WithDuration(time.Since(start))
	persistStart := time.Now()
	if err := a.conversations.RecordTurns(ctx, conversation, userTurn, assistantTurn); err != nil {
		a.logger.Error("Failed to persist turns", zap.String("userID", userID), zap.Error(err))
	}
	a.metrics.ObserveStage(StagePersistence, time.Since(persistStart))

	a.recordOutcome(TransportREST, audio)
	return &QueryResult{
		ConversationID: conversation.ID,
		Transcript:     userTurn.Content,
		Response:       response,
		Audio:          audio,
	}, nil
}

// RunTurn processes one audio message of a streaming session. The user and
// assistant turns go to the session buffer only. Errors returned are
// transcription failures, cancellation, or emitter failures.
func (a *VoiceAssistant) RunTurn(ctx context.Context, session *SessionBuffer, userCtx entities.UserContext, audio []byte, mimeType string, out TurnEmitter) error {
	start := time.Now()

	transcriptionStart := time.Now()
	transcription, err := a.transcription.Transcribe(ctx, audio, mimeType)
	a.metrics.ObserveStage(StageTranscription, time.Since(transcriptionStart))
	if err != nil {
		a.recordFailure(TransportWebsocket, err)
		return err
	}

	if err := out.Transcript(transcription.Transcript); err != nil {
		return err
	}
	session.Append(entities.NewTurn(entities.RoleUser, transcription.Transcript).
		WithConfidence(transcription.Confidence))

	response := a.generate(ctx, a.config.StreamingMode, session.Turns(), userCtx)
	if err := ctx.Err(); err != nil {
		a.metrics.Turn(TransportWebsocket, OutcomeCancelled)
		return err
	}

	if err := out.AssistantResponse(response); err != nil {
		return err
	}
	session.Append(entities.NewTurn(entities.RoleAssistant, response).WithDuration(time.Since(start)))

	ref := a.synthesize(ctx, response, userCtx.VoiceID, session.UserID(), a.synthesis.Encoding())
	a.recordOutcome(TransportWebsocket, ref)
	return out.Audio(ref)
}

// generate returns voice-formatted reply text
func (a *VoiceAssistant) generate(ctx context.Context, mode GenerationMode, history []entities.Turn, userCtx entities.UserContext) string {
	start := time.Now()
	reply := a.chat.Respond(ctx, mode, history, userCtx)
	a.metrics.ObserveStage(StageGeneration, time.Since(start))

	formatted := FormatForVoice(reply)
	if formatted == "" {
		formatted = FailedReply
	}
	return formatted
}

// synthesize absorbs synthesis failures, returning nil audio
func (a *VoiceAssistant) synthesize(ctx context.Context, text, voiceID, userID string, encoding AudioEncoding) *AudioReference {
	start := time.Now()
	speech := TruncateForSpeech(text, a.config.MaxSpeechChars, a.config.CutSpeechChars)
	ref, err := a.synthesis.SynthesizeAs(ctx, speech, voiceID, userID, encoding)
	a.metrics.ObserveStage(StageSynthesis, time.Since(start))
	if err != nil {
		a.metrics.SynthesisFailure()
		a.logger.Warn("Continuing without audio",
			zap.String("userID", userID),
			zap.Int("textLength", len(speech)),
			zap.Error(err))
		return nil
	}
	return ref
}

func (a *VoiceAssistant) recordOutcome(transport string, audio *AudioReference) {
	if audio == nil {
		a.metrics.Turn(transport, OutcomeNoAudio)
		return
	}
	a.metrics.Turn(transport, OutcomeOK)
}

func (a *VoiceAssistant) recordFailure(transport string, err error) {
	var transcriptionErr *TranscriptionError
	switch {
	case errors.As(err, &transcriptionErr):
		a.metrics.Turn(transport, OutcomeTranscriptionError)
	case errors.Is(err, ErrUserNotFound):
		a.metrics.Turn(transport, OutcomeUserNotFound)
	default:
		a.metrics.Turn(transport, OutcomeError)
	}
}
