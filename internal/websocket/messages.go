package websocket

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/satriahrh/lexvoice/usecase"
)

// MessageType defines the type of a streaming message
type MessageType string

// Supported message types
const (
	MessageTypeAudio             MessageType = "audio"
	MessageTypeTranscript        MessageType = "transcript"
	MessageTypeAssistantResponse MessageType = "assistant_response"
	MessageTypeError             MessageType = "error"
	MessageTypeStatus            MessageType = "status"
)

// Messages sent to clients
const (
	StatusReady          = "Voice agent ready"
	ErrorUserNotFound    = "user not found"
	ErrorBusy            = "busy: previous audio still processing"
	ErrorProcessingAudio = "Failed to process audio"
	ErrorSessionStart    = "Failed to initialize voice agent"
)

// maxAudioBytes bounds decoded audio of a single message
const maxAudioBytes = maxMessageSize * 3 / 4

// ClientMessage is what a client sends over the connection
type ClientMessage struct {
	Type     MessageType `json:"type"`
	Data     string      `json:"data"` // base64 encoded audio
	MimeType string      `json:"mimeType,omitempty"`
}

// ServerMessage is what the server sends. Only the fields relevant to the
// type are set.
type ServerMessage struct {
	Type      MessageType `json:"type"`
	Role      string      `json:"role,omitempty"`
	Text      string      `json:"text,omitempty"`
	Data      string      `json:"data,omitempty"`
	URL       string      `json:"url,omitempty"`
	MimeType  string      `json:"mimeType,omitempty"`
	Message   string      `json:"message,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
}

// AudioInput is a decoded audio message
type AudioInput struct {
	Audio    []byte
	MimeType string
}

var (
	errMissingType  = errors.New("message type is required")
	errMissingAudio = errors.New("audio data is required")
)

// ParseClientMessage validates an incoming text frame and decodes its audio
func ParseClientMessage(raw []byte) (*AudioInput, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch msg.Type {
	case "":
		return nil, errMissingType
	case MessageTypeAudio:
	default:
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}

	if msg.Data == "" {
		return nil, errMissingAudio
	}
	audio, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errMissingAudio
	}
	if len(audio) > maxAudioBytes {
		return nil, fmt.Errorf("audio exceeds %d bytes", maxAudioBytes)
	}

	return &AudioInput{Audio: audio, MimeType: msg.MimeType}, nil
}

// NewAudioRequest builds the message a client sends for one utterance
func NewAudioRequest(audio []byte, mimeType string) *ClientMessage {
	return &ClientMessage{
		Type:     MessageTypeAudio,
		Data:     base64.StdEncoding.EncodeToString(audio),
		MimeType: mimeType,
	}
}

func NewStatusMessage(message, sessionID string) *ServerMessage {
	return &ServerMessage{Type: MessageTypeStatus, Message: message, SessionID: sessionID}
}

func NewErrorMessage(message string) *ServerMessage {
	return &ServerMessage{Type: MessageTypeError, Message: message}
}

func NewTranscriptMessage(text string) *ServerMessage {
	return &ServerMessage{Type: MessageTypeTranscript, Role: "user", Text: text}
}

func NewAssistantResponseMessage(text string) *ServerMessage {
	return &ServerMessage{Type: MessageTypeAssistantResponse, Text: text}
}

// NewAudioMessage carries raw base64 for stream encoding and a URL for the
// file and inline encodings
func NewAudioMessage(audio *usecase.AudioReference) *ServerMessage {
	msg := &ServerMessage{Type: MessageTypeAudio, MimeType: audio.MimeType}
	switch audio.Encoding {
	case usecase.EncodingStream:
		msg.Data = audio.Base64()
	default:
		msg.URL = audio.URL
	}
	return msg
}
