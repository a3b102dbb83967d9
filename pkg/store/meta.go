package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/redive-tools/newswatch/pkg/models"
)

// MetaStore holds the last observed listing record per (source, id). It is
// what the comparator and decider consult; the post collection is what the
// world sees.
type MetaStore interface {
	// Find returns the stored record for (source, id), or nil.
	Find(ctx context.Context, source models.SourceKind, id int32) (*models.Metadata, error)
	// Replace upserts the record keyed by its (source, id).
	Replace(ctx context.Context, meta models.Metadata) error
}

// MetaRepo implements MetaStore on a MongoDB collection.
type MetaRepo struct {
	coll *mongo.Collection
}

var _ MetaStore = (*MetaRepo)(nil)

func (r *MetaRepo) Find(ctx context.Context, source models.SourceKind, id int32) (*models.Metadata, error) {
	var meta models.Metadata
	err := r.coll.FindOne(ctx, sourceMatch(source, id)).Decode(&meta)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find meta %s#%d: %w", source, id, err)
	}
	return &meta, nil
}

func (r *MetaRepo) Replace(ctx context.Context, meta models.Metadata) error {
	opts := options.FindOneAndReplace().SetUpsert(true)
	err := r.coll.FindOneAndReplace(ctx, sourceMatch(meta.Source, meta.ID), meta, opts).Err()
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("replace meta %s#%d: %w", meta.Source, meta.ID, err)
	}
	return nil
}
