package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/lexvoice/domain/entities"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// UserRepository defines data access methods for users
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entities.User, error)
	// Upsert stores a user, used to seed users from configuration
	Upsert(ctx context.Context, user *entities.User) error
}

// ConversationRepository defines data access methods for conversations.
// Implementations serialize writes per conversation.
type ConversationRepository interface {
	// Create inserts a new active conversation and archives any other active
	// conversation of the same user in the same operation.
	Create(ctx context.Context, conversation *entities.Conversation) error
	GetByID(ctx context.Context, id string) (*entities.Conversation, error)
	// GetActiveByUserID returns the most recently created active conversation,
	// or nil without error when the user has none.
	GetActiveByUserID(ctx context.Context, userID string) (*entities.Conversation, error)
	// ListByUserID returns all conversations of a user, newest first
	ListByUserID(ctx context.Context, userID string) ([]*entities.Conversation, error)
	AppendTurns(ctx context.Context, id string, turns ...entities.Turn) error
	// ReplaceTurns overwrites the turn list (last writer wins)
	ReplaceTurns(ctx context.Context, id string, turns []entities.Turn) error
	Archive(ctx context.Context, id string) (*entities.Conversation, error)
}

// AudioStorage persists synthesized audio and returns a reference a client
// can resolve
type AudioStorage interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}
