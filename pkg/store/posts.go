package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/redive-tools/newswatch/pkg/models"
)

// PostStore is the post persistence surface the pipeline consumes.
type PostStore interface {
	// FindBySourceID returns the post holding a data version with the given
	// (source, id), or nil when none exists.
	FindBySourceID(ctx context.Context, source models.SourceKind, id int32) (*models.Post, error)
	// FindRecentByTitle returns a post with the given mapped title updated at
	// or after since, or nil. Used to attach a second surface's observation to
	// an existing post instead of opening a duplicate.
	FindRecentByTitle(ctx context.Context, mappedTitle string, since time.Time) (*models.Post, error)
	// Replace upserts the full post document by id.
	Replace(ctx context.Context, post *models.Post) error
}

// PostRepo implements PostStore on a MongoDB collection.
type PostRepo struct {
	coll *mongo.Collection
}

var _ PostStore = (*PostRepo)(nil)

// sourceMatch builds the element filter for one (source, id) pair. An empty
// ServerID must match documents without the field, not any server.
func sourceMatch(source models.SourceKind, id int32) bson.M {
	match := bson.M{
		"id":          id,
		"source.kind": string(source.Kind),
	}
	if source.ServerID != "" {
		match["source.server_id"] = source.ServerID
	} else {
		match["source.server_id"] = bson.M{"$exists": false}
	}
	return match
}

func (r *PostRepo) FindBySourceID(ctx context.Context, source models.SourceKind, id int32) (*models.Post, error) {
	filter := bson.M{"data": bson.M{"$elemMatch": sourceMatch(source, id)}}

	var post models.Post
	err := r.coll.FindOne(ctx, filter).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find post by %s#%d: %w", source, id, err)
	}
	return &post, nil
}

func (r *PostRepo) FindRecentByTitle(ctx context.Context, mappedTitle string, since time.Time) (*models.Post, error) {
	filter := bson.M{
		"mapped_title":     mappedTitle,
		"data.update_time": bson.M{"$gte": since},
	}
	// Descending sort on an array field sorts by its maximum element, so the
	// post with the newest data version wins.
	opts := options.FindOne().SetSort(bson.D{{Key: "data.update_time", Value: -1}})

	var post models.Post
	err := r.coll.FindOne(ctx, filter, opts).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find post by title %q: %w", mappedTitle, err)
	}
	return &post, nil
}

// UpcomingEvents returns posts holding at least one event window that has
// not ended by the given instant. Backs the events CLI command.
func (r *PostRepo) UpcomingEvents(ctx context.Context, after time.Time) ([]models.Post, error) {
	filter := bson.M{"events.end": bson.M{"$gte": after}}
	opts := options.Find().SetSort(bson.D{{Key: "events.start", Value: 1}})

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find upcoming events: %w", err)
	}
	defer cursor.Close(ctx)

	var posts []models.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("decode upcoming events: %w", err)
	}
	return posts, nil
}

func (r *PostRepo) Replace(ctx context.Context, post *models.Post) error {
	opts := options.FindOneAndReplace().SetUpsert(true)
	err := r.coll.FindOneAndReplace(ctx, bson.M{"_id": post.ID}, post, opts).Err()
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("replace post %s: %w", post.ID, err)
	}
	return nil
}
