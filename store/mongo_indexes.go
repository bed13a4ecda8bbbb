package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates every index the Mongo stores rely on. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		IssuesCollection: {
			{
				Keys:    bson.D{{Key: "ticketId", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "issueType", Value: 1}, {Key: "seq", Value: -1}}},
			{Keys: bson.D{{Key: "zone", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "reporter.userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		PendingCollection: {
			{
				Keys:    bson.D{{Key: "sessionToken", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "emailKey", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "expiresAt", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0),
			},
		},
		AuditCollection: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		},
		UsersCollection: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for name, models := range specs {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}
