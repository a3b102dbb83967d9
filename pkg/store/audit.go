package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/redive-tools/newswatch/pkg/models"
)

// AuditStore records where each post went. Advisory only: a lost row just
// downgrades a later edit into a fresh send.
type AuditStore interface {
	Insert(ctx context.Context, audit models.Audit) error
	// FindLatest returns the newest audit row for (post, recipient), or nil.
	FindLatest(ctx context.Context, postID, recipient string) (*models.Audit, error)
}

// AuditRepo implements AuditStore on a MongoDB collection.
type AuditRepo struct {
	coll *mongo.Collection
}

var _ AuditStore = (*AuditRepo)(nil)

func (r *AuditRepo) Insert(ctx context.Context, audit models.Audit) error {
	if _, err := r.coll.InsertOne(ctx, audit); err != nil {
		return fmt.Errorf("insert audit for post %s: %w", audit.PostID, err)
	}
	return nil
}

func (r *AuditRepo) FindLatest(ctx context.Context, postID, recipient string) (*models.Audit, error) {
	filter := bson.M{"post_id": postID, "recipient": recipient}
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	var audit models.Audit
	err := r.coll.FindOne(ctx, filter, opts).Decode(&audit)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find audit for post %s: %w", postID, err)
	}
	return &audit, nil
}
