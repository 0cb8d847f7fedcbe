package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/domain/entities"
	"github.com/satriahrh/lexvoice/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8 << 20 // base64 audio of one utterance

	// Time allowed to persist the session buffer after the connection closed.
	flushTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// BusyPolicy decides what happens to audio arriving while a turn is in flight
type BusyPolicy string

const (
	BusyReject BusyPolicy = "reject"
	BusyQueue  BusyPolicy = "queue"
)

// Config configures streaming sessions
type Config struct {
	BusyPolicy BusyPolicy
	// QueueSize bounds audio waiting behind the in-flight turn when the
	// policy is BusyQueue
	QueueSize int
}

// Metrics receives session lifecycle events
type Metrics interface {
	SessionOpened()
	SessionClosed()
	ObserveStage(stage string, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) SessionOpened()                     {}
func (nopMetrics) SessionClosed()                     {}
func (nopMetrics) ObserveStage(string, time.Duration) {}

// Hub maintains the registry of open streaming sessions, keyed by session id.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	stop     chan struct{}
	stopOnce sync.Once

	assistant *usecase.VoiceAssistant
	config    Config
	metrics   Metrics
	logger    *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(assistant *usecase.VoiceAssistant, config Config, logger *zap.Logger) *Hub {
	if config.BusyPolicy != BusyQueue {
		config.BusyPolicy = BusyReject
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 4
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		assistant:  assistant,
		config:     config,
		metrics:    nopMetrics{},
		logger:     logger,
	}
}

// WithMetrics attaches session metrics
func (h *Hub) WithMetrics(m Metrics) *Hub {
	if m != nil {
		h.metrics = m
	}
	return h
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			h.metrics.SessionOpened()
			h.logger.Info("Client registered",
				zap.String("sessionID", client.sessionID),
				zap.String("userID", client.userID))

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client.sessionID]
			delete(h.clients, client.sessionID)
			h.mu.Unlock()
			if ok {
				h.metrics.SessionClosed()
			}
			h.logger.Info("Client unregistered",
				zap.String("sessionID", client.sessionID),
				zap.String("userID", client.userID))

		case <-h.stop:
			return
		}
	}
}

// Stop ends the main loop. Sessions still open are not closed, use
// Shutdown for that.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Count returns the number of registered sessions
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client returns the session registered under sessionID
func (h *Hub) Client(sessionID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[sessionID]
	return c, ok
}

// Shutdown closes every session and waits until their buffers are flushed
// or ctx expires
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.RLock()
	for _, c := range h.clients {
		c.cancel()
	}
	h.mu.RUnlock()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for h.Count() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (h *Hub) registerClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.stop:
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stop:
	}
}

// State of a streaming session
type State string

const (
	StateAwaitingUser State = "AWAITING_USER"
	StateTranscribing State = "TRANSCRIBING"
	StateGenerating   State = "GENERATING"
	StateSynthesizing State = "SYNTHESIZING"
	StateClosed       State = "CLOSED"
)

// Client is a middleman between the websocket connection and the pipeline.
// It owns the session buffer of its connection.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	sessionID string
	userID    string
	userCtx   entities.UserContext
	buffer    *usecase.SessionBuffer

	// ctx is cancelled when the connection goes away
	ctx    context.Context
	cancel context.CancelFunc

	// Accepted audio waiting for the turn loop
	jobs     chan *AudioInput
	capacity int
	done     chan struct{}

	mu      sync.Mutex
	state   State
	pending int

	logger *zap.Logger
}

// HandleWebSocket upgrades the request and runs a streaming session for
// userID. The user must exist; otherwise the client receives an error and
// the connection is closed.
func HandleWebSocket(hub *Hub, c echo.Context, userID string) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := hub.logger.With(zap.String("userID", userID))

	_, userCtx, err := hub.assistant.Conversations().LoadUser(ctx, userID)
	if err != nil {
		cancel()
		if errors.Is(err, usecase.ErrUserNotFound) {
			logger.Warn("Rejecting streaming session for unknown user")
			rejectConnection(conn, ErrorUserNotFound)
		} else {
			logger.Error("Failed to load user", zap.Error(err))
			rejectConnection(conn, ErrorSessionStart)
		}
		return nil
	}

	buffer, err := hub.assistant.Conversations().OpenSession(ctx, userID)
	if err != nil {
		cancel()
		logger.Error("Failed to open conversation", zap.Error(err))
		rejectConnection(conn, ErrorSessionStart)
		return nil
	}

	capacity := 1
	if hub.config.BusyPolicy == BusyQueue {
		capacity += hub.config.QueueSize
	}

	sessionID := uuid.NewString()
	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		sessionID: sessionID,
		userID:    userID,
		userCtx:   userCtx,
		buffer:    buffer,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(chan *AudioInput, capacity),
		capacity:  capacity,
		done:      make(chan struct{}),
		state:     StateAwaitingUser,
		logger: logger.With(
			zap.String("sessionID", sessionID),
			zap.String("conversationID", buffer.ConversationID())),
	}

	client.hub.registerClient(client)

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.turnLoop()
	go client.readPump()

	client.sendMessage(NewStatusMessage(StatusReady, sessionID))
	client.logger.Info("Voice assistant ready", zap.Int("seededTurns", buffer.Len()))
	return nil
}

// rejectConnection writes a final error and closes a connection that never
// became a session
func rejectConnection(conn *websocket.Conn, message string) {
	payload, _ := json.Marshal(NewErrorMessage(message))
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.TextMessage, payload)
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
	conn.Close()
}

// SessionID returns the id the session is registered under
func (c *Client) SessionID() string {
	return c.sessionID
}

// State returns the current pipeline state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// readPump pumps messages from the websocket connection to the turn loop.
// It owns the teardown of the session.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			input, err := ParseClientMessage(message)
			if err != nil {
				c.logger.Warn("Rejected client message", zap.Error(err))
				c.sendMessage(NewErrorMessage(err.Error()))
				continue
			}
			c.accept(input)
		case websocket.BinaryMessage:
			// raw audio frames carry no MIME type
			if len(message) == 0 {
				c.sendMessage(NewErrorMessage(errMissingAudio.Error()))
				continue
			}
			c.accept(&AudioInput{Audio: message})
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				c.cancel()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// accept admits audio into the turn loop or answers busy. At most capacity
// turns are admitted at once: the in-flight one plus the queue.
func (c *Client) accept(input *AudioInput) {
	c.mu.Lock()
	if c.state == StateClosed || c.pending >= c.capacity {
		c.mu.Unlock()
		c.logger.Info("Rejected audio while busy", zap.Int("pending", c.pending))
		c.sendMessage(NewErrorMessage(ErrorBusy))
		return
	}
	c.pending++
	c.mu.Unlock()

	c.jobs <- input
}

// turnLoop runs admitted turns one at a time
func (c *Client) turnLoop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case input := <-c.jobs:
			c.runTurn(input)
		}
	}
}

func (c *Client) runTurn(input *AudioInput) {
	c.setState(StateTranscribing)
	out := &turnEmitter{client: c}

	err := c.hub.assistant.RunTurn(c.ctx, c.buffer, c.userCtx, input.Audio, input.MimeType, out)
	if out.finished {
		return
	}
	c.finishTurn()

	var transcriptionErr *usecase.TranscriptionError
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		c.logger.Info("Abandoned in-flight turn")
	case errors.As(err, &transcriptionErr):
		c.logger.Warn("Transcription failed", zap.Error(err))
		c.sendMessage(NewErrorMessage(ErrorProcessingAudio))
	default:
		c.logger.Warn("Turn ended early", zap.Error(err))
	}
}

// finishTurn releases the admission slot taken by accept
func (c *Client) finishTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--
	if c.state == StateClosed {
		return
	}
	if c.pending > 0 {
		c.state = StateTranscribing
	} else {
		c.state = StateAwaitingUser
	}
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		c.state = state
	}
}

// close tears the session down: the in-flight turn is cancelled, the buffer
// is flushed and the session leaves the registry
func (c *Client) close() {
	c.cancel()
	<-c.done
	c.setState(StateClosed)

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := c.hub.assistant.Conversations().FlushSession(ctx, c.buffer); err != nil {
		c.logger.Error("Failed to persist session buffer", zap.Error(err))
	}
	c.hub.metrics.ObserveStage(usecase.StagePersistence, time.Since(start))

	c.hub.unregisterClient(c)
	c.conn.Close()
}

// sendMessage queues a message for the write pump
func (c *Client) sendMessage(msg *ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// turnEmitter forwards one turn's outputs to the client. The admission slot
// is released right before the final message is queued, so a client that
// answers the final message is never told it is busy.
type turnEmitter struct {
	client   *Client
	finished bool
}

func (e *turnEmitter) Transcript(text string) error {
	e.client.setState(StateGenerating)
	return e.client.sendMessage(NewTranscriptMessage(text))
}

func (e *turnEmitter) AssistantResponse(text string) error {
	e.client.setState(StateSynthesizing)
	return e.client.sendMessage(NewAssistantResponseMessage(text))
}

func (e *turnEmitter) Audio(audio *usecase.AudioReference) error {
	e.finished = true
	e.client.finishTurn()
	if audio == nil {
		return nil
	}
	return e.client.sendMessage(NewAudioMessage(audio))
}
