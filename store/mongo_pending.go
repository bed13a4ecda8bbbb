package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spotsort-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const PendingCollection = "pending_submissions"

// MongoPendingStore keeps one document per reporter email. Expired documents
// are reaped by the TTL index on expiresAt; Get also filters them out since the
// reaper runs only once a minute.
type MongoPendingStore struct {
	coll *mongo.Collection
}

func NewMongoPendingStore(db *mongo.Database) *MongoPendingStore {
	return &MongoPendingStore{coll: db.Collection(PendingCollection)}
}

func (s *MongoPendingStore) Put(ctx context.Context, p *models.PendingSubmission) error {
	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"emailKey": p.EmailKey}

	_, err := s.coll.ReplaceOne(ctx, filter, p, opts)
	if mongo.IsDuplicateKeyError(err) {
		// Two upserts for the same email raced; the second one now finds the document.
		_, err = s.coll.ReplaceOne(ctx, filter, p, opts)
	}
	if err != nil {
		return fmt.Errorf("store pending submission: %w", err)
	}
	return nil
}

func (s *MongoPendingStore) Get(ctx context.Context, token string, now time.Time) (*models.PendingSubmission, error) {
	var p models.PendingSubmission
	err := s.coll.FindOne(ctx, bson.M{
		"sessionToken": token,
		"expiresAt":    bson.M{"$gt": now},
	}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load pending submission: %w", err)
	}
	return &p, nil
}

func (s *MongoPendingStore) Claim(ctx context.Context, token string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"sessionToken": token})
	if err != nil {
		return fmt.Errorf("claim pending submission: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoPendingStore) Restore(ctx context.Context, p *models.PendingSubmission) error {
	_, err := s.coll.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore pending submission: %w", err)
	}
	return nil
}
