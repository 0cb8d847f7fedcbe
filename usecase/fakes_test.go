package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/satriahrh/lexvoice/domain/entities"
	"github.com/satriahrh/lexvoice/domain/repositories"
)

type generateCall struct {
	prompt  string
	history []repositories.ChatMessage
	message repositories.ChatMessage
}

// fakeLLM replays scripted errors before answering with reply
type fakeLLM struct {
	mu     sync.Mutex
	errs   []error
	reply  string
	calls  []generateCall
	always error
}

func (f *fakeLLM) next() (string, error) {
	if f.always != nil {
		return "", f.always
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	return f.reply, nil
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, config repositories.GenerationConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, generateCall{prompt: prompt})
	return f.next()
}

func (f *fakeLLM) GenerateChat(ctx context.Context, history []repositories.ChatMessage, config repositories.GenerationConfig) (repositories.ChatSession, error) {
	return &fakeChatSession{llm: f, history: append([]repositories.ChatMessage(nil), history...)}, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeChatSession struct {
	llm     *fakeLLM
	history []repositories.ChatMessage
}

func (s *fakeChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	s.llm.mu.Lock()
	defer s.llm.mu.Unlock()
	s.llm.calls = append(s.llm.calls, generateCall{history: s.history, message: message})
	text, err := s.llm.next()
	if err != nil {
		return repositories.ChatMessage{}, err
	}
	s.history = append(s.history, message, repositories.ChatMessage{Role: repositories.ModelRole, Content: text})
	return repositories.ChatMessage{Role: repositories.ModelRole, Content: text}, nil
}

type fakeSTT struct {
	result *repositories.Transcription
	err    error
	calls  int
}

func (f *fakeSTT) TranscribeAudio(ctx context.Context, audio []byte, config repositories.AudioConfig) (*repositories.Transcription, error) {
	f.calls++
	return f.result, f.err
}

// fakeTTS streams chunks, or fails before or after streaming
type fakeTTS struct {
	chunks    [][]byte
	mimeType  string
	startErr  error
	streamErr error
	texts     []string
}

func (f *fakeTTS) ConvertTextToSpeech(ctx context.Context, text, voiceID string) (*repositories.AudioStream, error) {
	f.texts = append(f.texts, text)
	if f.startErr != nil {
		return nil, f.startErr
	}
	mimeType := f.mimeType
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	stream := repositories.NewAudioStream(mimeType, 0)
	go func() {
		for _, chunk := range f.chunks {
			if !stream.Send(ctx, chunk) {
				stream.Finish(ctx.Err())
				return
			}
		}
		stream.Finish(f.streamErr)
	}()
	return stream, nil
}

type fakeAudioStorage struct {
	saved map[string][]byte
	err   error
}

func (f *fakeAudioStorage) Save(ctx context.Context, name string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[name] = data
	return "/audio/" + name, nil
}

type fakeUsers struct {
	users   map[string]*entities.User
	lookups int
}

func newFakeUsers(users ...*entities.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*entities.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*entities.User, error) {
	f.lookups++
	u, ok := f.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) Upsert(ctx context.Context, user *entities.User) error {
	f.users[user.ID] = user
	return nil
}

type fakeConversations struct {
	mu            sync.Mutex
	conversations map[string]*entities.Conversation
	writeErr      error
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{conversations: make(map[string]*entities.Conversation)}
}

func (f *fakeConversations) Create(ctx context.Context, c *entities.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, other := range f.conversations {
		if other.UserID == c.UserID && other.IsActive() {
			other.Archive()
		}
	}
	stored := *c
	stored.Turns = c.History()
	f.conversations[c.ID] = &stored
	return nil
}

func (f *fakeConversations) GetByID(ctx context.Context, id string) (*entities.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *c
	cp.Turns = c.History()
	return &cp, nil
}

func (f *fakeConversations) GetActiveByUserID(ctx context.Context, userID string) (*entities.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.UserID == userID && c.IsActive() {
			cp := *c
			cp.Turns = c.History()
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeConversations) ListByUserID(ctx context.Context, userID string) ([]*entities.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entities.Conversation
	for _, c := range f.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeConversations) AppendTurns(ctx context.Context, id string, turns ...entities.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	c, ok := f.conversations[id]
	if !ok {
		return repositories.ErrNotFound
	}
	c.AddTurns(turns...)
	return nil
}

func (f *fakeConversations) ReplaceTurns(ctx context.Context, id string, turns []entities.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	c, ok := f.conversations[id]
	if !ok {
		return repositories.ErrNotFound
	}
	c.ReplaceTurns(turns)
	return nil
}

func (f *fakeConversations) Archive(ctx context.Context, id string) (*entities.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c.Archive()
	return c, nil
}

func (f *fakeConversations) turns(id string) []entities.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conversations[id].History()
}

// recordingEmitter captures streaming outputs in order
type recordingEmitter struct {
	events []string
	texts  []string
	audio  []*AudioReference
	failOn string
}

func (e *recordingEmitter) emit(kind, text string) error {
	if e.failOn == kind {
		return errors.New("connection closed")
	}
	e.events = append(e.events, kind)
	e.texts = append(e.texts, text)
	return nil
}

func (e *recordingEmitter) Transcript(text string) error { return e.emit("transcript", text) }

func (e *recordingEmitter) AssistantResponse(text string) error {
	return e.emit("assistant_response", text)
}

func (e *recordingEmitter) Audio(audio *AudioReference) error {
	if audio == nil {
		return nil
	}
	if err := e.emit("audio", audio.URL); err != nil {
		return err
	}
	e.audio = append(e.audio, audio)
	return nil
}

type recordedSleeps struct {
	durations []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.durations = append(r.durations, d)
	return ctx.Err()
}

type countingRecorder struct {
	mu       sync.Mutex
	retries  int
	failures int
	turns    map[string]int
	stages   map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{turns: make(map[string]int), stages: make(map[string]int)}
}

func (c *countingRecorder) ObserveStage(stage string, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages[stage]++
}

func (c *countingRecorder) GenerationRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retries++
}

func (c *countingRecorder) SynthesisFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
}

func (c *countingRecorder) Turn(transport, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns[transport+"/"+outcome]++
}
