package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/internal/websocket"
)

// Reconnect policy used when Config leaves it unset
const (
	DefaultMaxAttempts = 5
	DefaultBackoffStep = 2 * time.Second
)

var (
	// ErrNotConnected is returned when sending without an open connection
	ErrNotConnected = errors.New("websocket is not connected")
	// ErrReconnectFailed is returned by Run once every attempt has failed
	ErrReconnectFailed = errors.New("reconnect attempts exhausted")
	// ErrUserNotFound is returned by Run when the server rejects the user
	ErrUserNotFound = errors.New("user not found")
)

// Config configures a Client
type Config struct {
	// URL is the streaming endpoint, e.g. ws://localhost:8080/ws
	URL         string
	UserID      string
	MaxAttempts int
	BackoffStep time.Duration
	Dialer      *gws.Dialer
}

// Handler receives every server message in arrival order
type Handler func(msg *websocket.ServerMessage)

// Client keeps a streaming connection open, reconnecting after drops. Each
// reconnect opens a new server session; nothing is replayed from the client.
type Client struct {
	config Config
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *gws.Conn
	sessionID string
}

// New creates a client. It does not connect until Run is called.
func New(config Config, logger *zap.Logger) *Client {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.BackoffStep <= 0 {
		config.BackoffStep = DefaultBackoffStep
	}
	if config.Dialer == nil {
		config.Dialer = gws.DefaultDialer
	}
	return &Client{
		config: config,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Run connects and dispatches messages to handler until ctx is done, the user
// is rejected, or MaxAttempts consecutive reconnects fail. The n-th attempt
// waits n times BackoffStep; a successful connection resets the count.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	attempts := 0
	for {
		connected, err := c.session(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		if connected {
			attempts = 0
		}

		if attempts >= c.config.MaxAttempts {
			return fmt.Errorf("%w: %v", ErrReconnectFailed, err)
		}
		attempts++
		delay := time.Duration(attempts) * c.config.BackoffStep
		c.logger.Info("Reconnecting",
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// session runs one connection. connected reports whether the dial succeeded.
func (c *Client) session(ctx context.Context, handler Handler) (connected bool, err error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return false, err
	}
	c.setConn(conn)
	defer c.setConn(nil)

	stop := context.AfterFunc(ctx, func() {
		c.writeMu.Lock()
		conn.WriteControl(gws.CloseMessage,
			gws.FormatCloseMessage(gws.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
	})
	defer stop()
	defer conn.Close()

	c.logger.Info("WebSocket connected", zap.String("userID", c.config.UserID))
	for {
		var msg websocket.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.logger.Info("WebSocket disconnected", zap.Error(err))
			return true, err
		}

		switch {
		case msg.Type == websocket.MessageTypeStatus && msg.SessionID != "":
			c.mu.Lock()
			c.sessionID = msg.SessionID
			c.mu.Unlock()
		case msg.Type == websocket.MessageTypeError && msg.Message == websocket.ErrorUserNotFound:
			handler(&msg)
			return true, ErrUserNotFound
		}
		handler(&msg)
	}
}

func (c *Client) dial(ctx context.Context) (*gws.Conn, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	q := u.Query()
	q.Set("userId", c.config.UserID)
	u.RawQuery = q.Encode()

	conn, resp, err := c.config.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return conn, nil
}

func (c *Client) setConn(conn *gws.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	if conn == nil {
		c.sessionID = ""
	}
}

// SessionID returns the server session of the current connection, or ""
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SendAudio sends one utterance over the current connection
func (c *Client) SendAudio(audio []byte, mimeType string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(websocket.NewAudioRequest(audio, mimeType))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
