package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ConversationStatus represents the lifecycle state of a conversation
type ConversationStatus string

const (
	ConversationStatusActive   ConversationStatus = "active"
	ConversationStatusArchived ConversationStatus = "archived"
)

// Role represents the speaker of a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// TurnMetadata contains optional measurements attached to a turn
type TurnMetadata struct {
	Confidence *float64 `json:"confidence,omitempty" bson:"confidence,omitempty"`
	DurationMs *int64   `json:"duration,omitempty" bson:"duration,omitempty"`
}

// Turn is one utterance or reply in a conversation. Turns are never mutated
// after creation; their order is the model's context window.
type Turn struct {
	Role      Role         `json:"role" bson:"role"`
	Content   string       `json:"content" bson:"content"`
	Timestamp time.Time    `json:"timestamp" bson:"timestamp"`
	Metadata  TurnMetadata `json:"metadata" bson:"metadata"`
}

// NewTurn creates a turn stamped with the current time
func NewTurn(role Role, content string) Turn {
	return Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// WithConfidence returns a copy of the turn carrying a transcription confidence
func (t Turn) WithConfidence(confidence float64) Turn {
	t.Metadata.Confidence = &confidence
	return t
}

// WithDuration returns a copy of the turn carrying a processing duration
func (t Turn) WithDuration(d time.Duration) Turn {
	ms := d.Milliseconds()
	t.Metadata.DurationMs = &ms
	return t
}

// Conversation is the ordered turn history of one user
type Conversation struct {
	ID        string             `json:"id" bson:"_id"`
	UserID    string             `json:"user_id" bson:"user_id"`
	Status    ConversationStatus `json:"status" bson:"status"`
	Turns     []Turn             `json:"messages" bson:"messages"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// NewConversation creates an empty active conversation for a user. IDs are
// UUIDv7 so they sort by creation time.
func NewConversation(userID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        NewConversationID(),
		UserID:    userID,
		Status:    ConversationStatusActive,
		Turns:     make([]Turn, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewConversationID returns a time-ordered conversation id
func NewConversationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// AddTurns appends turns in order
func (c *Conversation) AddTurns(turns ...Turn) {
	c.Turns = append(c.Turns, turns...)
	c.UpdatedAt = time.Now()
}

// ReplaceTurns overwrites the turn list with a copy of turns
func (c *Conversation) ReplaceTurns(turns []Turn) {
	c.Turns = append(make([]Turn, 0, len(turns)), turns...)
	c.UpdatedAt = time.Now()
}

// History returns a copy of the turns safe for the caller to extend
func (c *Conversation) History() []Turn {
	return append(make([]Turn, 0, len(c.Turns)+2), c.Turns...)
}

// Archive marks the conversation as no longer receiving turns
func (c *Conversation) Archive() {
	c.Status = ConversationStatusArchived
	c.UpdatedAt = time.Now()
}

// IsActive reports whether the conversation still receives new turns
func (c *Conversation) IsActive() bool {
	return c.Status == ConversationStatusActive
}

// Validate validates the conversation data
func (c *Conversation) Validate() error {
	if c.UserID == "" {
		return errors.New("user_id is required")
	}

	if c.Status != ConversationStatusActive && c.Status != ConversationStatusArchived {
		return errors.New("invalid conversation status")
	}

	for _, t := range c.Turns {
		if !t.Role.Valid() {
			return errors.New("invalid turn role: " + string(t.Role))
		}
	}

	return nil
}
