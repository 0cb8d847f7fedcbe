// Package storetest holds behaviour tests shared by every repository
// backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/satriahrh/lexvoice/domain/entities"
	"github.com/satriahrh/lexvoice/domain/repositories"
)

// ConversationRepository exercises a fresh repository returned by newRepo
func ConversationRepository(t *testing.T, newRepo func(t *testing.T) repositories.ConversationRepository) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := newRepo(t)
		conversation := entities.NewConversation("user-1")
		if err := repo.Create(ctx, conversation); err != nil {
			t.Fatalf("Failed to create conversation: %v", err)
		}
		if conversation.ID == "" {
			t.Fatal("Expected an ID to be assigned")
		}

		retrieved, err := repo.GetByID(ctx, conversation.ID)
		if err != nil {
			t.Fatalf("Failed to get conversation: %v", err)
		}
		if retrieved.UserID != "user-1" || !retrieved.IsActive() {
			t.Errorf("Expected active conversation of user-1, got %+v", retrieved)
		}

		if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, repositories.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("CreateRejectsInvalid", func(t *testing.T) {
		repo := newRepo(t)
		if err := repo.Create(ctx, entities.NewConversation("")); err == nil {
			t.Error("Expected error for conversation without user")
		}
	})

	t.Run("SingleActivePerUser", func(t *testing.T) {
		repo := newRepo(t)

		if active, err := repo.GetActiveByUserID(ctx, "user-1"); err != nil || active != nil {
			t.Fatalf("Expected no active conversation, got %+v, %v", active, err)
		}

		first := entities.NewConversation("user-1")
		second := entities.NewConversation("user-1")
		other := entities.NewConversation("user-2")
		for _, c := range []*entities.Conversation{first, other, second} {
			if err := repo.Create(ctx, c); err != nil {
				t.Fatalf("Failed to create conversation: %v", err)
			}
		}

		active, err := repo.GetActiveByUserID(ctx, "user-1")
		if err != nil {
			t.Fatalf("Failed to get active conversation: %v", err)
		}
		if active.ID != second.ID {
			t.Errorf("Expected %s active, got %s", second.ID, active.ID)
		}

		old, _ := repo.GetByID(ctx, first.ID)
		if old.IsActive() {
			t.Errorf("Expected previous conversation archived")
		}
		untouched, _ := repo.GetByID(ctx, other.ID)
		if !untouched.IsActive() {
			t.Errorf("Expected other user's conversation to stay active")
		}

		list, err := repo.ListByUserID(ctx, "user-1")
		if err != nil {
			t.Fatalf("Failed to list conversations: %v", err)
		}
		if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
			t.Errorf("Expected 2 conversations newest first, got %d", len(list))
		}
	})

	t.Run("AppendTurnsPreservesOrder", func(t *testing.T) {
		repo := newRepo(t)
		conversation := entities.NewConversation("user-1")
		_ = repo.Create(ctx, conversation)

		for _, content := range []string{"one", "two", "three"} {
			if err := repo.AppendTurns(ctx, conversation.ID, entities.NewTurn(entities.RoleUser, content)); err != nil {
				t.Fatalf("Failed to append turn: %v", err)
			}
		}
		if err := repo.AppendTurns(ctx, conversation.ID,
			entities.NewTurn(entities.RoleAssistant, "four").WithConfidence(0.5)); err != nil {
			t.Fatalf("Failed to append turn: %v", err)
		}

		retrieved, _ := repo.GetByID(ctx, conversation.ID)
		expected := []string{"one", "two", "three", "four"}
		if len(retrieved.Turns) != len(expected) {
			t.Fatalf("Expected %d turns, got %d", len(expected), len(retrieved.Turns))
		}
		for i, content := range expected {
			if retrieved.Turns[i].Content != content {
				t.Errorf("Expected %q at %d, got %q", content, i, retrieved.Turns[i].Content)
			}
		}
		if c := retrieved.Turns[3].Metadata.Confidence; c == nil || *c != 0.5 {
			t.Errorf("Expected confidence metadata to survive storage")
		}

		if err := repo.AppendTurns(ctx, "missing", entities.NewTurn(entities.RoleUser, "x")); !errors.Is(err, repositories.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ReplaceTurnsOverwrites", func(t *testing.T) {
		repo := newRepo(t)
		conversation := entities.NewConversation("user-1")
		_ = repo.Create(ctx, conversation)
		_ = repo.AppendTurns(ctx, conversation.ID, entities.NewTurn(entities.RoleUser, "stale"))

		replacement := []entities.Turn{
			entities.NewTurn(entities.RoleUser, "q"),
			entities.NewTurn(entities.RoleAssistant, "a"),
		}
		if err := repo.ReplaceTurns(ctx, conversation.ID, replacement); err != nil {
			t.Fatalf("Failed to replace turns: %v", err)
		}
		replacement[0].Content = "mutated after write"

		retrieved, _ := repo.GetByID(ctx, conversation.ID)
		if len(retrieved.Turns) != 2 || retrieved.Turns[0].Content != "q" {
			t.Errorf("Expected replaced turns, got %+v", retrieved.Turns)
		}
	})

	t.Run("ReturnedCopiesAreIsolated", func(t *testing.T) {
		repo := newRepo(t)
		conversation := entities.NewConversation("user-1")
		_ = repo.Create(ctx, conversation)

		retrieved, _ := repo.GetByID(ctx, conversation.ID)
		retrieved.AddTurns(entities.NewTurn(entities.RoleUser, "local only"))

		again, _ := repo.GetByID(ctx, conversation.ID)
		if len(again.Turns) != 0 {
			t.Errorf("Expected stored conversation untouched, got %d turns", len(again.Turns))
		}
	})

	t.Run("Archive", func(t *testing.T) {
		repo := newRepo(t)
		conversation := entities.NewConversation("user-1")
		_ = repo.Create(ctx, conversation)

		archived, err := repo.Archive(ctx, conversation.ID)
		if err != nil {
			t.Fatalf("Failed to archive: %v", err)
		}
		if archived.IsActive() {
			t.Errorf("Expected archived conversation")
		}
		if active, _ := repo.GetActiveByUserID(ctx, "user-1"); active != nil {
			t.Errorf("Expected no active conversation after archive")
		}
		if _, err := repo.Archive(ctx, "missing"); !errors.Is(err, repositories.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		repo := newRepo(t)
		conversation := entities.NewConversation("user-1")
		_ = repo.Create(ctx, conversation)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = repo.AppendTurns(ctx, conversation.ID,
					entities.NewTurn(entities.RoleUser, "q"), entities.NewTurn(entities.RoleAssistant, "a"))
			}()
		}
		wg.Wait()

		retrieved, _ := repo.GetByID(ctx, conversation.ID)
		if len(retrieved.Turns) != 40 {
			t.Fatalf("Expected 40 turns, got %d", len(retrieved.Turns))
		}
		for i := 0; i < len(retrieved.Turns); i += 2 {
			if retrieved.Turns[i].Role != entities.RoleUser || retrieved.Turns[i+1].Role != entities.RoleAssistant {
				t.Fatalf("Expected exchanges to stay paired at %d", i)
			}
		}
	})

	t.Run("ConcurrentCreatesLeaveOneActive", func(t *testing.T) {
		repo := newRepo(t)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// A racing Create may be rejected; the store must stay consistent
				_ = repo.Create(ctx, entities.NewConversation("user-1"))
			}()
		}
		wg.Wait()

		conversations, err := repo.ListByUserID(ctx, "user-1")
		if err != nil {
			t.Fatalf("Failed to list conversations: %v", err)
		}
		active := 0
		for _, c := range conversations {
			if c.IsActive() {
				active++
			}
		}
		if active != 1 {
			t.Errorf("Expected exactly one active conversation, got %d of %d", active, len(conversations))
		}
	})
}

// UserRepository exercises a fresh user repository returned by newRepo
func UserRepository(t *testing.T, newRepo func(t *testing.T) repositories.UserRepository) {
	ctx := context.Background()

	t.Run("UpsertAndGet", func(t *testing.T) {
		repo := newRepo(t)
		user := &entities.User{
			ID:   "user-1",
			Name: "Asha",
			Preferences: entities.UserPreferences{
				VoiceID:           "aura-luna-en",
				Jurisdiction:      "Indian",
				ConversationStyle: entities.StyleTechnical,
			},
		}
		if err := repo.Upsert(ctx, user); err != nil {
			t.Fatalf("Failed to upsert user: %v", err)
		}

		retrieved, err := repo.GetByID(ctx, "user-1")
		if err != nil {
			t.Fatalf("Failed to get user: %v", err)
		}
		if retrieved.Preferences != user.Preferences {
			t.Errorf("Expected preferences %+v, got %+v", user.Preferences, retrieved.Preferences)
		}

		user.Name = "Asha K"
		if err := repo.Upsert(ctx, user); err != nil {
			t.Fatalf("Failed to update user: %v", err)
		}
		retrieved, _ = repo.GetByID(ctx, "user-1")
		if retrieved.Name != "Asha K" {
			t.Errorf("Expected updated name, got %s", retrieved.Name)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		repo := newRepo(t)
		if _, err := repo.GetByID(ctx, "nobody"); !errors.Is(err, repositories.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		repo := newRepo(t)
		if err := repo.Upsert(ctx, &entities.User{ID: "x"}); err == nil {
			t.Error("Expected error for user without name")
		}
	})
}
