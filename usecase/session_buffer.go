package usecase

import (
	"sync"

	"github.com/satriahrh/lexvoice/domain/entities"
)

// SessionBuffer is the working copy of a conversation owned by one streaming
// connection. It is seeded once, grows by appends and is flushed back by
// replacing the stored turn list.
type SessionBuffer struct {
	conversationID string
	userID         string

	mu     sync.Mutex
	turns  []entities.Turn
	seeded int
}

// NewSessionBuffer seeds a buffer from a stored conversation
func NewSessionBuffer(conversation *entities.Conversation) *SessionBuffer {
	return &SessionBuffer{
		conversationID: conversation.ID,
		userID:         conversation.UserID,
		turns:          conversation.History(),
		seeded:         len(conversation.Turns),
	}
}

func (b *SessionBuffer) ConversationID() string { return b.conversationID }

func (b *SessionBuffer) UserID() string { return b.userID }

// Append adds turns after the existing ones
func (b *SessionBuffer) Append(turns ...entities.Turn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = append(b.turns, turns...)
}

// Turns returns a snapshot of the buffered turns
func (b *SessionBuffer) Turns() []entities.Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append(make([]entities.Turn, 0, len(b.turns)+1), b.turns...)
}

// Len returns the number of buffered turns
func (b *SessionBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.turns)
}

// Appended returns how many turns were added since seeding
func (b *SessionBuffer) Appended() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.turns) - b.seeded
}
