// Package store is the persistence layer: a MongoDB client wrapper plus
// typed repositories for the post, per-source metadata and audit collections.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/redive-tools/newswatch/pkg/config"
)

// Collection names. Kept short; they predate this implementation.
const (
	collectionPost  = "post"
	collectionMeta  = "meta"
	collectionAudit = "audit"
)

// Client owns the database connection and hands out repositories.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect establishes and verifies the database connection.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.ConnectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	c := &Client{client: client, db: client.Database(cfg.Database)}
	if err := c.Ping(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	slog.Info("Connected to MongoDB", "database", cfg.Database)
	return c, nil
}

// Ping verifies the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongodb: %w", err)
	}
	return nil
}

// Close releases the connection.
func (c *Client) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongodb: %w", err)
	}
	return nil
}

// DropDatabase removes the whole database. Test harness use only.
func (c *Client) DropDatabase(ctx context.Context) error {
	return c.db.Drop(ctx)
}

// Posts returns the post repository.
func (c *Client) Posts() *PostRepo {
	return &PostRepo{coll: c.db.Collection(collectionPost)}
}

// Meta returns the per-source metadata repository.
func (c *Client) Meta() *MetaRepo {
	return &MetaRepo{coll: c.db.Collection(collectionMeta)}
}

// Audits returns the audit repository.
func (c *Client) Audits() *AuditRepo {
	return &AuditRepo{coll: c.db.Collection(collectionAudit)}
}
