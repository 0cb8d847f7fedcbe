package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/satriahrh/lexvoice/domain/entities"
	"github.com/satriahrh/lexvoice/domain/repositories"
)

var (
	usersBucket         = []byte("users")
	conversationsBucket = []byte("conversations")
	// userIndexBucket keys are user_id NUL conversation_id. Conversation ids
	// are UUIDv7, so a prefix scan yields a user's conversations oldest first.
	userIndexBucket = []byte("conv_by_user")
)

// Store is an embedded single-file store for users and conversations
type Store struct {
	db     *bolt.DB
	logger *zap.Logger
}

// Open opens or creates the BoltDB file at path
func Open(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{usersBucket, conversationsBucket, userIndexBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	logger.Info("Opened bolt store", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying file
func (s *Store) Close() error {
	return s.db.Close()
}

// Users returns the user repository backed by this store
func (s *Store) Users() *UserRepository {
	return &UserRepository{db: s.db}
}

// Conversations returns the conversation repository backed by this store
func (s *Store) Conversations() *ConversationRepository {
	return &ConversationRepository{db: s.db}
}

// UserRepository implements repositories.UserRepository on BoltDB
type UserRepository struct {
	db *bolt.DB
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// GetByID implements repositories.UserRepository
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	var user entities.User
	err := r.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(usersBucket), id, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Upsert implements repositories.UserRepository
func (r *UserRepository) Upsert(ctx context.Context, user *entities.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(usersBucket)
		stored := *user
		if stored.CreatedAt.IsZero() {
			var existing entities.User
			if err := get(b, user.ID, &existing); err == nil {
				stored.CreatedAt = existing.CreatedAt
			} else {
				stored.CreatedAt = time.Now()
			}
		}
		return put(b, stored.ID, stored)
	})
}

// ConversationRepository implements repositories.ConversationRepository on
// BoltDB. Every write runs in one bolt transaction.
type ConversationRepository struct {
	db *bolt.DB
}

var _ repositories.ConversationRepository = (*ConversationRepository)(nil)

// Create implements repositories.ConversationRepository
func (r *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return fmt.Errorf("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}
	if conversation.ID == "" {
		conversation.ID = entities.NewConversationID()
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		conversations := tx.Bucket(conversationsBucket)
		if conversations.Get([]byte(conversation.ID)) != nil {
			return fmt.Errorf("conversation %s already exists", conversation.ID)
		}

		err := forEachOfUser(tx, conversation.UserID, func(c *entities.Conversation) error {
			if !c.IsActive() {
				return nil
			}
			c.Archive()
			return put(conversations, c.ID, c)
		})
		if err != nil {
			return err
		}

		if err := put(conversations, conversation.ID, conversation); err != nil {
			return err
		}
		return tx.Bucket(userIndexBucket).Put(indexKey(conversation.UserID, conversation.ID), nil)
	})
}

// GetByID implements repositories.ConversationRepository
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*entities.Conversation, error) {
	var conversation entities.Conversation
	err := r.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(conversationsBucket), id, &conversation)
	})
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// GetActiveByUserID implements repositories.ConversationRepository
func (r *ConversationRepository) GetActiveByUserID(ctx context.Context, userID string) (*entities.Conversation, error) {
	var active *entities.Conversation
	err := r.db.View(func(tx *bolt.Tx) error {
		return forEachOfUser(tx, userID, func(c *entities.Conversation) error {
			if c.IsActive() {
				active = c
			}
			return nil
		})
	})
	return active, err
}

// ListByUserID implements repositories.ConversationRepository
func (r *ConversationRepository) ListByUserID(ctx context.Context, userID string) ([]*entities.Conversation, error) {
	var oldestFirst []*entities.Conversation
	err := r.db.View(func(tx *bolt.Tx) error {
		return forEachOfUser(tx, userID, func(c *entities.Conversation) error {
			oldestFirst = append(oldestFirst, c)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	result := make([]*entities.Conversation, 0, len(oldestFirst))
	for i := len(oldestFirst) - 1; i >= 0; i-- {
		result = append(result, oldestFirst[i])
	}
	return result, nil
}

// AppendTurns implements repositories.ConversationRepository
func (r *ConversationRepository) AppendTurns(ctx context.Context, id string, turns ...entities.Turn) error {
	return r.modify(id, func(c *entities.Conversation) { c.AddTurns(turns...) })
}

// ReplaceTurns implements repositories.ConversationRepository
func (r *ConversationRepository) ReplaceTurns(ctx context.Context, id string, turns []entities.Turn) error {
	return r.modify(id, func(c *entities.Conversation) { c.ReplaceTurns(turns) })
}

// Archive implements repositories.ConversationRepository
func (r *ConversationRepository) Archive(ctx context.Context, id string) (*entities.Conversation, error) {
	var archived entities.Conversation
	err := r.modify(id, func(c *entities.Conversation) {
		c.Archive()
		archived = *c
	})
	if err != nil {
		return nil, err
	}
	return &archived, nil
}

func (r *ConversationRepository) modify(id string, fn func(c *entities.Conversation)) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		var conversation entities.Conversation
		if err := get(b, id, &conversation); err != nil {
			return err
		}
		fn(&conversation)
		return put(b, id, &conversation)
	})
}

func forEachOfUser(tx *bolt.Tx, userID string, fn func(c *entities.Conversation) error) error {
	conversations := tx.Bucket(conversationsBucket)
	prefix := indexKey(userID, "")
	cursor := tx.Bucket(userIndexBucket).Cursor()

	var ids []string
	for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
		ids = append(ids, string(k[len(prefix):]))
	}

	for _, id := range ids {
		var c entities.Conversation
		if err := get(conversations, id, &c); err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
	}
	return nil
}

func indexKey(userID, conversationID string) []byte {
	return []byte(userID + "\x00" + conversationID)
}

func get(b *bolt.Bucket, key string, v any) error {
	data := b.Get([]byte(key))
	if data == nil {
		return repositories.ErrNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func put(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return b.Put([]byte(key), data)
}
