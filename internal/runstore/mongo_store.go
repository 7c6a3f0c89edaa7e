package runstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultSummariesCollection = "run_summaries"

// MongoStore backs the Run Store with MongoDB when RUN_STORE_MONGO_URI is
// configured, giving operators queryable run history instead of Redis's
// key-per-task TTL cache. A Mongo TTL index on expires_at removes expired
// documents, and Get also treats a document past expires_at as absent, so
// RUN_STORE_TTL_SECONDS holds end to end. Modeled on the teacher's
// features/run/mongo.Store and its underlying clients/mongo.Client.
type MongoStore struct {
	coll *mongodriver.Collection
}

// NewMongoStore connects client to database/collection and ensures the TTL
// index exists before returning. collection defaults to "run_summaries" when
// empty.
func NewMongoStore(ctx context.Context, client *mongodriver.Client, database, collection string) (*MongoStore, error) {
	if client == nil {
		return nil, errors.New("runstore: mongo client is required")
	}
	if database == "" {
		return nil, errors.New("runstore: database name is required")
	}
	if collection == "" {
		collection = defaultSummariesCollection
	}
	coll := client.Database(database).Collection(collection)
	index := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		return nil, fmt.Errorf("runstore: ensure ttl index: %w", err)
	}
	return &MongoStore{coll: coll}, nil
}

type summaryDocument struct {
	TaskID    string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Status    Status    `bson:"status"`
	StartedAt time.Time `bson:"started_at"`
	UpdatedAt time.Time `bson:"updated_at"`
	Error     string    `bson:"error,omitempty"`
	ExpiresAt time.Time `bson:"expires_at"`
}

func (m *MongoStore) Set(ctx context.Context, taskID string, summary Summary, ttl time.Duration) error {
	doc := summaryDocument{
		TaskID:    taskID,
		UserID:    summary.UserID,
		Status:    summary.Status,
		StartedAt: summary.StartedAt.UTC(),
		UpdatedAt: summary.UpdatedAt.UTC(),
		Error:     summary.Error,
		ExpiresAt: time.Now().Add(ttl).UTC(),
	}
	filter := bson.M{"_id": taskID}
	update := bson.M{"$set": doc}
	_, err := m.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("runstore: mongo upsert: %w", err)
	}
	return nil
}

func (m *MongoStore) Get(ctx context.Context, taskID string) (*Summary, error) {
	var doc summaryDocument
	err := m.coll.FindOne(ctx, bson.M{"_id": taskID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runstore: mongo find: %w", err)
	}
	if time.Now().After(doc.ExpiresAt) {
		return nil, nil
	}
	summary := Summary{
		TaskID:    doc.TaskID,
		UserID:    doc.UserID,
		Status:    doc.Status,
		StartedAt: doc.StartedAt,
		UpdatedAt: doc.UpdatedAt,
		Error:     doc.Error,
	}
	return &summary, nil
}

func (m *MongoStore) Delete(ctx context.Context, taskID string) error {
	_, err := m.coll.DeleteOne(ctx, bson.M{"_id": taskID})
	if err != nil {
		return fmt.Errorf("runstore: mongo delete: %w", err)
	}
	return nil
}
