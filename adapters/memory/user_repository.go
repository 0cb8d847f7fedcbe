package memory

import (
	"context"
	"sync"
	"time"

	"github.com/satriahrh/lexvoice/domain/entities"
	"github.com/satriahrh/lexvoice/domain/repositories"
)

// UserRepository is an in-memory implementation of UserRepository
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]entities.User
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new in-memory user repository
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]entities.User)}
}

// GetByID implements UserRepository interface
func (m *UserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[id]
	if !exists {
		return nil, repositories.ErrNotFound
	}
	return &user, nil
}

// Upsert implements UserRepository interface
func (m *UserRepository) Upsert(ctx context.Context, user *entities.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *user
	if existing, exists := m.users[user.ID]; exists && stored.CreatedAt.IsZero() {
		stored.CreatedAt = existing.CreatedAt
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.users[user.ID] = stored
	return nil
}
