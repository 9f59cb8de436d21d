// Package directory reads profile and property summaries owned by other
// services. It is read-only and always fetches in batches.
package directory

import (
	"context"
	"fmt"

	"darna/pkg/config"
	mongodb "darna/pkg/db/mongo"
	"darna/pkg/model"
	"darna/pkg/realtime"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ProfileLookup interface {
	GetMany(ctx context.Context, ids []string) (map[string]model.ProfileSummary, error)
}

type PropertyLookup interface {
	GetMany(ctx context.Context, ids []string) (map[string]model.PropertySummary, error)
}

type mongoProfiles struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoProfiles(cfg *config.Config) ProfileLookup {
	return &mongoProfiles{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(realtime.TableProfiles),
	}
}

func (r *mongoProfiles) GetMany(ctx context.Context, ids []string) (map[string]model.ProfileSummary, error) {
	var rows []model.ProfileSummary
	if err := findMany(ctx, r.collection, ids, r.cfg, bson.M{
		"_id": 1, "display_name": 1, "avatar_url": 1, "role": 1,
	}, &rows); err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	out := make(map[string]model.ProfileSummary, len(rows))
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

type mongoProperties struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoProperties(cfg *config.Config) PropertyLookup {
	return &mongoProperties{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(realtime.TableProperties),
	}
}

func (r *mongoProperties) GetMany(ctx context.Context, ids []string) (map[string]model.PropertySummary, error) {
	var rows []model.PropertySummary
	if err := findMany(ctx, r.collection, ids, r.cfg, bson.M{
		"_id": 1, "title": 1, "owner_id": 1, "city": 1, "wilaya": 1, "cover_url": 1,
	}, &rows); err != nil {
		return nil, fmt.Errorf("failed to load properties: %w", err)
	}

	out := make(map[string]model.PropertySummary, len(rows))
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

func findMany(ctx context.Context, coll *mongo.Collection, ids []string, cfg *config.Config, projection bson.M, out any) error {
	ids = mongodb.Unique(ids)
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := mongodb.WithTimeout(ctx, cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"_id": bson.M{"$in": mongodb.IDCandidates(ids)}}
	cursor, err := coll.Find(ctx, filter, options.Find().SetProjection(projection))
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	return cursor.All(ctx, out)
}
