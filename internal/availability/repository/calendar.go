package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	availabilityerrors "darna/internal/availability/errors"
	"darna/pkg/config"
	mongodb "darna/pkg/db/mongo"
	"darna/pkg/model"
	"darna/pkg/realtime"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const CollectionName = realtime.TableCalendars

type CalendarRepository interface {
	// Get returns the stored calendar or an empty one with version 0.
	Get(ctx context.Context, propertyID string) (model.AvailabilityCalendar, error)
	// Save writes cal if the stored version still equals expectedVersion and
	// returns it with the new version.
	Save(ctx context.Context, cal model.AvailabilityCalendar, expectedVersion int64) (model.AvailabilityCalendar, error)
}

type mongoCalendarRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoCalendarRepository(cfg *config.Config) CalendarRepository {
	return &mongoCalendarRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(CollectionName),
	}
}

func (r *mongoCalendarRepository) Get(ctx context.Context, propertyID string) (model.AvailabilityCalendar, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var cal model.AvailabilityCalendar
	err := r.collection.FindOne(ctx, bson.M{"_id": propertyID}).Decode(&cal)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.NewCalendar(propertyID), nil
		}
		return model.AvailabilityCalendar{}, fmt.Errorf("failed to load calendar: %w", err)
	}
	return cal, nil
}

func (r *mongoCalendarRepository) Save(ctx context.Context, cal model.AvailabilityCalendar, expectedVersion int64) (model.AvailabilityCalendar, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	cal.Version = expectedVersion + 1
	cal.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if expectedVersion == 0 {
		if _, err := r.collection.InsertOne(ctx, cal); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return model.AvailabilityCalendar{}, availabilityerrors.ErrVersionConflict
			}
			return model.AvailabilityCalendar{}, fmt.Errorf("failed to create calendar: %w", err)
		}
		return cal, nil
	}

	filter := bson.M{"_id": cal.PropertyID, "version": expectedVersion}
	result, err := r.collection.ReplaceOne(ctx, filter, cal)
	if err != nil {
		return model.AvailabilityCalendar{}, fmt.Errorf("failed to save calendar: %w", err)
	}
	if result.MatchedCount == 0 {
		return model.AvailabilityCalendar{}, availabilityerrors.ErrVersionConflict
	}
	return cal, nil
}
