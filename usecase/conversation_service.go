package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/domain/entities"
	"github.com/satriahrh/lexvoice/domain/repositories"
)

// ConversationService owns user lookup and the lifecycle of active
// conversations for both transports
type ConversationService struct {
	users         repositories.UserRepository
	conversations repositories.ConversationRepository
	defaults      entities.UserContext
	logger        *zap.Logger
}

// NewConversationService creates a new conversation service
func NewConversationService(
	users repositories.UserRepository,
	conversations repositories.ConversationRepository,
	defaults entities.UserContext,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		users:         users,
		conversations: conversations,
		defaults:      defaults,
		logger:        logger,
	}
}

// LoadUser returns the user and its generation context. A missing user is
// reported as ErrUserNotFound.
func (s *ConversationService) LoadUser(ctx context.Context, userID string) (*entities.User, entities.UserContext, error) {
	if userID == "" {
		return nil, entities.UserContext{}, ErrUserNotFound
	}
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, entities.UserContext{}, ErrUserNotFound
	}
	if err != nil {
		return nil, entities.UserContext{}, fmt.Errorf("loading user %s: %w", userID, err)
	}
	return user, user.Context(s.defaults), nil
}

// ActiveConversation returns the user's active conversation, creating one
// when there is none
func (s *ConversationService) ActiveConversation(ctx context.Context, userID string) (*entities.Conversation, error) {
	conversation, err := s.conversations.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching active conversation: %w", err)
	}
	if conversation != nil {
		return conversation, nil
	}

	conversation = entities.NewConversation(userID)
	if err := s.conversations.Create(ctx, conversation); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Info("Created conversation",
		zap.String("conversationID", conversation.ID),
		zap.String("userID", userID))
	return conversation, nil
}

// RecordTurns persists turns of a request-scoped exchange in one write
func (s *ConversationService) RecordTurns(ctx context.Context, conversation *entities.Conversation, turns ...entities.Turn) error {
	if err := s.conversations.AppendTurns(ctx, conversation.ID, turns...); err != nil {
		return &PersistenceError{ConversationID: conversation.ID, Err: err}
	}
	conversation.AddTurns(turns...)
	return nil
}

// OpenSession hydrates a session buffer from the active conversation
func (s *ConversationService) OpenSession(ctx context.Context, userID string) (*SessionBuffer, error) {
	conversation, err := s.ActiveConversation(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewSessionBuffer(conversation), nil
}

// FlushSession overwrites the stored turn list with the buffer contents.
// Concurrent sessions on one conversation resolve as last writer wins.
func (s *ConversationService) FlushSession(ctx context.Context, buffer *SessionBuffer) error {
	start := time.Now()
	turns := buffer.Turns()
	if err := s.conversations.ReplaceTurns(ctx, buffer.ConversationID(), turns); err != nil {
		return &PersistenceError{ConversationID: buffer.ConversationID(), Err: err}
	}

	s.logger.Info("Flushed session buffer",
		zap.String("conversationID", buffer.ConversationID()),
		zap.Int("turns", len(turns)),
		zap.Int("appended", buffer.Appended()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// ListConversations returns the user's conversations, newest first
func (s *ConversationService) ListConversations(ctx context.Context, userID string) ([]*entities.Conversation, error) {
	return s.conversations.ListByUserID(ctx, userID)
}

// GetConversation returns one conversation
func (s *ConversationService) GetConversation(ctx context.Context, id string) (*entities.Conversation, error) {
	return s.conversations.GetByID(ctx, id)
}

// ArchiveConversation stops a conversation from receiving turns
func (s *ConversationService) ArchiveConversation(ctx context.Context, id string) (*entities.Conversation, error) {
	conversation, err := s.conversations.Archive(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Archived conversation", zap.String("conversationID", id))
	return conversation, nil
}
