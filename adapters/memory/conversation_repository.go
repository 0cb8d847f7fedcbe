package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/satriahrh/lexvoice/domain/entities"
	"github.com/satriahrh/lexvoice/domain/repositories"
)

// ConversationRepository is an in-memory implementation of
// ConversationRepository. Callers always receive copies.
type ConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*entities.Conversation   // id -> conversation
	byUser        map[string][]*entities.Conversation // user_id -> conversations, oldest first
}

var _ repositories.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a new in-memory conversation repository
func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		conversations: make(map[string]*entities.Conversation),
		byUser:        make(map[string][]*entities.Conversation),
	}
}

// Create implements ConversationRepository interface
func (m *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if conversation.ID == "" {
		conversation.ID = entities.NewConversationID()
	}
	if _, exists := m.conversations[conversation.ID]; exists {
		return errors.New("conversation already exists")
	}

	for _, other := range m.byUser[conversation.UserID] {
		if other.IsActive() {
			other.Archive()
		}
	}

	stored := clone(conversation)
	m.conversations[stored.ID] = stored
	m.byUser[stored.UserID] = append(m.byUser[stored.UserID], stored)
	return nil
}

// GetByID implements ConversationRepository interface
func (m *ConversationRepository) GetByID(ctx context.Context, id string) (*entities.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conversation, exists := m.conversations[id]
	if !exists {
		return nil, repositories.ErrNotFound
	}
	return clone(conversation), nil
}

// GetActiveByUserID implements ConversationRepository interface
func (m *ConversationRepository) GetActiveByUserID(ctx context.Context, userID string) (*entities.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owned := m.byUser[userID]
	for i := len(owned) - 1; i >= 0; i-- {
		if owned[i].IsActive() {
			return clone(owned[i]), nil
		}
	}
	return nil, nil
}

// ListByUserID implements ConversationRepository interface
func (m *ConversationRepository) ListByUserID(ctx context.Context, userID string) ([]*entities.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owned := m.byUser[userID]
	result := make([]*entities.Conversation, 0, len(owned))
	for i := len(owned) - 1; i >= 0; i-- {
		result = append(result, clone(owned[i]))
	}
	return result, nil
}

// AppendTurns implements ConversationRepository interface
func (m *ConversationRepository) AppendTurns(ctx context.Context, id string, turns ...entities.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conversation, exists := m.conversations[id]
	if !exists {
		return repositories.ErrNotFound
	}
	conversation.AddTurns(turns...)
	return nil
}

// ReplaceTurns implements ConversationRepository interface
func (m *ConversationRepository) ReplaceTurns(ctx context.Context, id string, turns []entities.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conversation, exists := m.conversations[id]
	if !exists {
		return repositories.ErrNotFound
	}
	conversation.ReplaceTurns(turns)
	return nil
}

// Archive implements ConversationRepository interface
func (m *ConversationRepository) Archive(ctx context.Context, id string) (*entities.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conversation, exists := m.conversations[id]
	if !exists {
		return nil, repositories.ErrNotFound
	}
	conversation.Archive()
	return clone(conversation), nil
}

func clone(c *entities.Conversation) *entities.Conversation {
	cp := *c
	cp.Turns = append(make([]entities.Turn, 0, len(c.Turns)), c.Turns...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	return &cp
}
