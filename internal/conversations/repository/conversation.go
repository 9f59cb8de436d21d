package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	conversationserrors "darna/internal/conversations/errors"
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
	CollectionName = realtime.TableConversations
)

type ConversationRepository interface {
	Create(ctx context.Context, conv *model.Conversation) error
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	FindByParticipant(ctx context.Context, userID string) ([]model.Conversation, error)
	FindByTriple(ctx context.Context, clientID, ownerID, propertyID string) (*model.Conversation, error)
	// TouchLastMessage moves last_message_at forward to at. It never moves it
	// back.
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
}

type mongoConversationRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoConversationRepository(cfg *config.Config) ConversationRepository {
	return &mongoConversationRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(CollectionName),
	}
}

func (r *mongoConversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	conv.CreatedAt = now
	conv.LastMessageAt = now

	result, err := r.collection.InsertOne(ctx, conv)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return conversationserrors.ErrDuplicate
		}
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		conv.ID = oid.Hex()
	}
	return nil
}

func (r *mongoConversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := mongodb.ObjectID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", conversationserrors.ErrInvalidID, id)
	}

	return r.findOne(ctx, bson.M{"_id": objectID})
}

func (r *mongoConversationRepository) FindByTriple(ctx context.Context, clientID, ownerID, propertyID string) (*model.Conversation, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	return r.findOne(ctx, bson.M{
		"client_id":   clientID,
		"owner_id":    ownerID,
		"property_id": propertyID,
	})
}

func (r *mongoConversationRepository) findOne(ctx context.Context, filter bson.M) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.collection.FindOne(ctx, filter).Decode(&conv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, conversationserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return &conv, nil
}

func (r *mongoConversationRepository) FindByParticipant(ctx context.Context, userID string) ([]model.Conversation, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"$or": bson.A{
		bson.M{"client_id": userID},
		bson.M{"owner_id": userID},
	}}
	opts := options.Find().SetSort(bson.D{
		{Key: "last_message_at", Value: -1},
		{Key: "_id", Value: -1},
	})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	convs := []model.Conversation{}
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return convs, nil
}

func (r *mongoConversationRepository) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := mongodb.ObjectID(id)
	if err != nil {
		return fmt.Errorf("%w: %s", conversationserrors.ErrInvalidID, id)
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$max": bson.M{"last_message_at": at.UTC().Truncate(time.Millisecond)}},
	)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if result.MatchedCount == 0 {
		return conversationserrors.ErrNotFound
	}
	return nil
}
