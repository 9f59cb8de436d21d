package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	messageserrors "darna/internal/messages/errors"
	"darna/pkg/config"
	mongodb "darna/pkg/db/mongo"
	"darna/pkg/model"
	"darna/pkg/realtime"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = realtime.TableMessages
)

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) error
	FindByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	FindByConversations(ctx context.Context, conversationIDs []string) (map[string][]model.Message, error)
	FindByClientRef(ctx context.Context, conversationID, clientRef string) (*model.Message, error)
	// MarkSeen sets every message viewerID did not send to seen and returns
	// how many changed.
	MarkSeen(ctx context.Context, conversationID, viewerID string) (int64, error)
	// MarkDelivered moves viewerID's incoming sent messages to delivered.
	MarkDelivered(ctx context.Context, conversationID, viewerID string) (int64, error)
}

type mongoMessageRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoMessageRepository(cfg *config.Config) MessageRepository {
	return &mongoMessageRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(CollectionName),
	}
}

var messageOrder = bson.D{
	{Key: "created_at", Value: 1},
	{Key: "_id", Value: 1},
}

func (r *mongoMessageRepository) Create(ctx context.Context, msg *model.Message) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	msg.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, msg)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return messageserrors.ErrDuplicateClientRef
		}
		return fmt.Errorf("failed to create message: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		msg.ID = oid.Hex()
	}
	return nil
}

func (r *mongoMessageRepository) FindByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	return r.find(ctx, bson.M{"conversation_id": conversationID})
}

func (r *mongoMessageRepository) FindByConversations(ctx context.Context, conversationIDs []string) (map[string][]model.Message, error) {
	ids := mongodb.Unique(conversationIDs)
	out := make(map[string][]model.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	msgs, err := r.find(ctx, bson.M{"conversation_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		out[m.ConversationID] = append(out[m.ConversationID], m)
	}
	return out, nil
}

func (r *mongoMessageRepository) find(ctx context.Context, filter bson.M) ([]model.Message, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(messageOrder))
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	msgs := []model.Message{}
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return msgs, nil
}

func (r *mongoMessageRepository) FindByClientRef(ctx context.Context, conversationID, clientRef string) (*model.Message, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var msg model.Message
	err := r.collection.FindOne(ctx, bson.M{
		"conversation_id": conversationID,
		"client_ref":      clientRef,
	}).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, messageserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find message: %w", err)
	}
	return &msg, nil
}

func (r *mongoMessageRepository) MarkSeen(ctx context.Context, conversationID, viewerID string) (int64, error) {
	return r.advance(ctx, conversationID, viewerID,
		bson.M{"$ne": model.MessageSeen}, model.MessageSeen)
}

func (r *mongoMessageRepository) MarkDelivered(ctx context.Context, conversationID, viewerID string) (int64, error) {
	return r.advance(ctx, conversationID, viewerID,
		model.MessageSent, model.MessageDelivered)
}

func (r *mongoMessageRepository) advance(ctx context.Context, conversationID, viewerID string, from any, to model.MessageStatus) (int64, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"conversation_id": conversationID,
		"sender_id":       bson.M{"$ne": viewerID},
		"status":          from,
	}
	result, err := r.collection.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"status": to}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages %s: %w", to, err)
	}
	return result.ModifiedCount, nil
}
