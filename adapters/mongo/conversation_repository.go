package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/satriahrh/lexvoice/domain/entities"
	"github.com/satriahrh/lexvoice/domain/repositories"
)

// ConversationRepository stores conversations in the "conversations"
// collection. A partial unique index keeps at most one active conversation
// per user.
type ConversationRepository struct {
	collection *mongo.Collection
}

var _ repositories.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a new MongoDB conversation repository
func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{
		collection: db.Collection("conversations"),
	}
}

// EnsureIndexes creates the lookup and single-active indexes
func (r *ConversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName("one_active_per_user").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": entities.ConversationStatusActive}),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}
	return nil
}

// Create archives the user's active conversations and inserts the new one
// inside a session transaction. Servers without transaction support (a
// standalone mongod) run the two writes in sequence; the partial unique
// index then rejects an insert that races another Create for the same user.
func (r *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}
	if conversation.ID == "" {
		conversation.ID = entities.NewConversationID()
	}

	session, err := r.collection.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, r.archiveAndInsert(sc, conversation)
	})
	if transactionsUnsupported(err) {
		err = r.archiveAndInsert(ctx, conversation)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("user %s already has an active conversation: %w", conversation.UserID, err)
	}
	return err
}

func (r *ConversationRepository) archiveAndInsert(ctx context.Context, conversation *entities.Conversation) error {
	_, err := r.collection.UpdateMany(ctx,
		bson.M{"user_id": conversation.UserID, "status": entities.ConversationStatusActive},
		bson.M{"$set": bson.M{"status": entities.ConversationStatusArchived, "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to archive previous conversations: %w", err)
	}

	if _, err := r.collection.InsertOne(ctx, conversation); err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// IllegalOperation is returned for transactions on a standalone server
const illegalOperationCode = 20

func transactionsUnsupported(err error) bool {
	var serverErr mongo.ServerError
	return errors.As(err, &serverErr) && serverErr.HasErrorCode(illegalOperationCode)
}

// GetByID implements repositories.ConversationRepository
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*entities.Conversation, error) {
	return r.findOne(ctx, bson.M{"_id": id}, nil)
}

// GetActiveByUserID implements repositories.ConversationRepository
func (r *ConversationRepository) GetActiveByUserID(ctx context.Context, userID string) (*entities.Conversation, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	conversation, err := r.findOne(ctx, bson.M{"user_id": userID, "status": entities.ConversationStatusActive}, opts)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	return conversation, err
}

// ListByUserID implements repositories.ConversationRepository
func (r *ConversationRepository) ListByUserID(ctx context.Context, userID string) ([]*entities.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations for user %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	conversations := make([]*entities.Conversation, 0)
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return conversations, nil
}

// AppendTurns implements repositories.ConversationRepository
func (r *ConversationRepository) AppendTurns(ctx context.Context, id string, turns ...entities.Turn) error {
	return r.update(ctx, id, bson.M{
		"$push": bson.M{"messages": bson.M{"$each": turns}},
		"$set":  bson.M{"updated_at": time.Now()},
	})
}

// ReplaceTurns implements repositories.ConversationRepository
func (r *ConversationRepository) ReplaceTurns(ctx context.Context, id string, turns []entities.Turn) error {
	if turns == nil {
		turns = []entities.Turn{}
	}
	return r.update(ctx, id, bson.M{
		"$set": bson.M{"messages": turns, "updated_at": time.Now()},
	})
}

// Archive implements repositories.ConversationRepository
func (r *ConversationRepository) Archive(ctx context.Context, id string) (*entities.Conversation, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var conversation entities.Conversation
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": entities.ConversationStatusArchived, "updated_at": time.Now()}},
		opts,
	).Decode(&conversation)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to archive conversation %s: %w", id, err)
	}
	return &conversation, nil
}

func (r *ConversationRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*entities.Conversation, error) {
	var conversation entities.Conversation
	var err error
	if opts != nil {
		err = r.collection.FindOne(ctx, filter, opts).Decode(&conversation)
	} else {
		err = r.collection.FindOne(ctx, filter).Decode(&conversation)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return &conversation, nil
}

func (r *ConversationRepository) update(ctx context.Context, id string, update bson.M) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update conversation %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
