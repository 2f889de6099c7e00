package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// settingDocument is the MongoDB representation of a single setting.
type settingDocument struct {
	Key       string            `bson:"_id"`
	Value     string            `bson:"value"`
	Metadata  map[string]string `bson:"metadata,omitempty"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

// MongoProvider stores settings in a MongoDB collection, one document per key.
type MongoProvider struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// MongoProviderOption configures a MongoProvider.
type MongoProviderOption func(*MongoProvider)

// WithMongoLogger sets the logger for the provider.
func WithMongoLogger(logger *slog.Logger) MongoProviderOption {
	return func(p *MongoProvider) {
		p.logger = logger
	}
}

// NewMongoProvider creates a new MongoDB-backed settings provider.
func NewMongoProvider(collection *mongo.Collection, opts ...MongoProviderOption) *MongoProvider {
	p := &MongoProvider{
		collection: collection,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Get returns the stored value for key, or ErrNotFound.
func (p *MongoProvider) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", errors.New("key is required")
	}

	var doc settingDocument
	err := p.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		p.logger.ErrorContext(ctx, "failed to find setting",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to get setting: %w", err)
	}

	return doc.Value, nil
}

// Set upserts the setting document for key.
func (p *MongoProvider) Set(ctx context.Context, key, value string, metadata map[string]string) error {
	if key == "" {
		return errors.New("key is required")
	}

	update := bson.M{
		"$set": bson.M{
			"value":      value,
			"metadata":   metadata,
			"updated_at": time.Now().UTC(),
		},
	}

	_, err := p.collection.UpdateOne(ctx, bson.M{"_id": key}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to store setting",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to store setting: %w", err)
	}

	return nil
}

var _ Provider = (*MongoProvider)(nil)
