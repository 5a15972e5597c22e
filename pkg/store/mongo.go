package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/RuneRubble/rs-proxy/pkg/player"
)

// MongoStore implements Store on a MongoDB collection, one document per
// player.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// MongoConfig holds the connection settings for the Mongo backend
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// NewMongoStore connects to MongoDB and ensures the unique username
// index exists.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure username index: %w", err)
	}

	return &MongoStore{client: client, coll: coll}, nil
}

func (s *MongoStore) FindByUsername(ctx context.Context, username string) (*player.PlayerRecord, error) {
	var rec player.PlayerRecord
	err := s.coll.FindOne(ctx, bson.M{"username": username}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	return &rec, nil
}

// Save inserts new records and replaces existing ones with a
// compare-and-swap on the stored version.
func (s *MongoStore) Save(ctx context.Context, rec *player.PlayerRecord) error {
	prev := rec.Version
	rec.Version = prev + 1

	if prev == 0 {
		_, err := s.coll.InsertOne(ctx, rec)
		if mongo.IsDuplicateKeyError(err) {
			rec.Version = prev
			return ErrVersionConflict
		}
		if err != nil {
			rec.Version = prev
			return fmt.Errorf("failed to insert record: %w", err)
		}
		return nil
	}

	res, err := s.coll.ReplaceOne(ctx, bson.M{"username": rec.Username, "version": prev}, rec)
	if err != nil {
		rec.Version = prev
		return fmt.Errorf("failed to replace record: %w", err)
	}
	if res.MatchedCount == 0 {
		rec.Version = prev
		return ErrVersionConflict
	}
	return nil
}

func (s *MongoStore) ListActive(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"username": 1}).
		SetSort(bson.D{{Key: "username", Value: 1}})
	cursor, err := s.coll.Find(ctx, bson.M{"deleted": bson.M{"$ne": true}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list active players: %w", err)
	}
	defer cursor.Close(ctx)

	var names []string
	for cursor.Next(ctx) {
		var doc struct {
			Username string `bson:"username"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode username: %w", err)
		}
		names = append(names, doc.Username)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating active players: %w", err)
	}
	return names, nil
}

func (s *MongoStore) MarkInactive(ctx context.Context, username string) (int64, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"username": username, "deleted": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"deleted": true}, "$inc": bson.M{"version": 1}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark record inactive: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
