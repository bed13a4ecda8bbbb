package store

import (
	"context"
	"fmt"

	"spotsort-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const AuditCollection = "audit_logs"

type MongoAuditStore struct {
	coll *mongo.Collection
}

func NewMongoAuditStore(db *mongo.Database) *MongoAuditStore {
	return &MongoAuditStore{coll: db.Collection(AuditCollection)}
}

func (s *MongoAuditStore) Append(ctx context.Context, e *models.AuditEntry) error {
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *MongoAuditStore) Recent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	entries := make([]models.AuditEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode audit entries: %w", err)
	}
	return entries, nil
}
