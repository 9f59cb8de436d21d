package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "darna/internal/bookings/errors"
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
	CollectionName = realtime.TableBookingRequests
)

type mongoBookingRequestRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

type BookingRequestRepository interface {
	Create(ctx context.Context, req *model.BookingRequest) error
	FindByID(ctx context.Context, id string) (*model.BookingRequest, error)
	FindByOwner(ctx context.Context, ownerID string) ([]model.BookingRequest, error)
	FindByRequester(ctx context.Context, requesterID string) ([]model.BookingRequest, error)
	// TransitionStatus moves the request from one status to another only if
	// it is still in from. It returns ErrStatusChanged when it is not.
	TransitionStatus(ctx context.Context, id string, from, to model.BookingStatus, actorID string) (*model.BookingRequest, error)
	MarkCalendarSynced(ctx context.Context, id string) (*model.BookingRequest, error)
}

func NewMongoBookingRequestRepository(cfg *config.Config) BookingRequestRepository {
	return &mongoBookingRequestRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(CollectionName),
	}
}

func (r *mongoBookingRequestRepository) Create(ctx context.Context, req *model.BookingRequest) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	req.CreatedAt = now
	req.UpdatedAt = now
	result, err := r.collection.InsertOne(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to create booking request: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		req.ID = oid.Hex()
	}
	return nil
}

func (r *mongoBookingRequestRepository) FindByID(ctx context.Context, id string) (*model.BookingRequest, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := mongodb.ObjectID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	var req model.BookingRequest
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking request: %w", err)
	}

	return &req, nil
}

func (r *mongoBookingRequestRepository) FindByOwner(ctx context.Context, ownerID string) ([]model.BookingRequest, error) {
	return r.findBy(ctx, bson.M{"owner_id": ownerID})
}

func (r *mongoBookingRequestRepository) FindByRequester(ctx context.Context, requesterID string) ([]model.BookingRequest, error) {
	return r.findBy(ctx, bson.M{"requester_id": requesterID})
}

func (r *mongoBookingRequestRepository) findBy(ctx context.Context, filter bson.M) ([]model.BookingRequest, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list booking requests: %w", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	reqs := []model.BookingRequest{}
	if err := cursor.All(ctx, &reqs); err != nil {
		return nil, fmt.Errorf("failed to decode booking requests: %w", err)
	}
	return reqs, nil
}

func (r *mongoBookingRequestRepository) TransitionStatus(ctx context.Context, id string, from, to model.BookingStatus, actorID string) (*model.BookingRequest, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := mongodb.ObjectID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID, "status": from}
	update := bson.M{"$set": bson.M{
		"status":      to,
		"resolved_by": actorID,
		"updated_at":  time.Now().UTC().Truncate(time.Millisecond),
	}}

	updated, err := r.findOneAndUpdate(ctx, filter, update)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update booking request status: %w", err)
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": objectID})
	if err != nil {
		return nil, fmt.Errorf("failed to check booking request: %w", err)
	}
	if count == 0 {
		return nil, bookingserrors.ErrNotFound
	}
	return nil, bookingserrors.ErrStatusChanged
}

func (r *mongoBookingRequestRepository) MarkCalendarSynced(ctx context.Context, id string) (*model.BookingRequest, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := mongodb.ObjectID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID, "status": model.BookingAccepted}
	update := bson.M{"$set": bson.M{
		"calendar_synced": true,
		"updated_at":      time.Now().UTC().Truncate(time.Millisecond),
	}}

	updated, err := r.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrStatusChanged
		}
		return nil, fmt.Errorf("failed to mark calendar synced: %w", err)
	}
	return updated, nil
}

func (r *mongoBookingRequestRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*model.BookingRequest, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var req model.BookingRequest
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}
