package catalog

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/soundjacket/metapub/internal/models"
)

// mongoCollection is the part of *mongo.Collection the store uses
type mongoCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// MongoStore writes catalog entries to a MongoDB collection, one document per
// published item keyed by (meta_hash, index).
type MongoStore struct {
	client     *mongo.Client
	collection mongoCollection
}

// NewMongoStore connects, verifies the connection and ensures the lookup index
func NewMongoStore(ctx context.Context, mongoURI, database, collection string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	coll := client.Database(database).Collection(collection)

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "meta_hash", Value: 1}, {Key: "index", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create catalog index: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: coll,
	}, nil
}

// Save upserts the entry so re-indexing a root replaces its documents
func (s *MongoStore) Save(ctx context.Context, entry models.CatalogEntry) error {
	filter := bson.M{"meta_hash": entry.MetaHash, "index": entry.Index}
	update := bson.M{"$set": entry}
	opts := options.Update().SetUpsert(true)

	if _, err := s.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save catalog entry: %w", err)
	}
	return nil
}

// Find returns all entries for a root ordered by index
func (s *MongoStore) Find(ctx context.Context, metaHash string) ([]models.CatalogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "index", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"meta_hash": metaHash}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []models.CatalogEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode catalog entries: %w", err)
	}
	return entries, nil
}

// Flush is a no-op; Save writes through
func (s *MongoStore) Flush(ctx context.Context) error {
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
