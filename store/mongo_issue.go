package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spotsort-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	IssuesCollection   = "issues"
	CountersCollection = "counters"

	// maxTicketAttempts bounds the insert loop when a ticket id collides.
	maxTicketAttempts = 5
)

type MongoIssueStore struct {
	issues   *mongo.Collection
	counters *mongo.Collection
	now      func() time.Time
}

func NewMongoIssueStore(db *mongo.Database) *MongoIssueStore {
	return &MongoIssueStore{
		issues:   db.Collection(IssuesCollection),
		counters: db.Collection(CountersCollection),
		now:      time.Now,
	}
}

type counter struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

// Create draws the next sequence for the issue type and inserts. A duplicate
// ticket id means the counter fell behind the collection, so it is pulled up
// to the highest persisted sequence and the insert is retried.
func (s *MongoIssueStore) Create(ctx context.Context, issue *models.Issue) error {
	if issue.Status == "" {
		issue.Status = models.Pending
	}

	for attempt := 0; attempt < maxTicketAttempts; attempt++ {
		seq, err := s.nextSeq(ctx, issue.IssueType)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		issue.ID = primitive.NewObjectID()
		issue.Seq = seq
		issue.TicketID = models.FormatTicketID(issue.IssueType, seq)
		issue.CreatedAt, issue.UpdatedAt = now, now

		_, err = s.issues.InsertOne(ctx, issue)
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert issue: %w", err)
		}
		if err := s.resync(ctx, issue.IssueType); err != nil {
			return err
		}
	}

	issue.ID, issue.TicketID, issue.Seq = primitive.NilObjectID, "", 0
	return fmt.Errorf("allocate ticket id for %s: %w", issue.IssueType, ErrDuplicate)
}

func (s *MongoIssueStore) nextSeq(ctx context.Context, t models.IssueType) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var c counter
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": string(t)},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("advance %s counter: %w", t, err)
	}
	return c.Seq, nil
}

func (s *MongoIssueStore) resync(ctx context.Context, t models.IssueType) error {
	var last models.Issue
	err := s.issues.FindOne(ctx,
		bson.M{"issueType": t},
		options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}}).SetProjection(bson.M{"seq": 1}),
	).Decode(&last)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("read highest %s sequence: %w", t, err)
	}

	_, err = s.counters.UpdateOne(ctx,
		bson.M{"_id": string(t)},
		bson.M{"$max": bson.M{"seq": last.Seq}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("resync %s counter: %w", t, err)
	}
	return nil
}

func (s *MongoIssueStore) FindByTicketID(ctx context.Context, ticketID string) (*models.Issue, error) {
	var issue models.Issue
	err := s.issues.FindOne(ctx, bson.M{"ticketId": ticketID}).Decode(&issue)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find issue %s: %w", ticketID, err)
	}
	return &issue, nil
}

func (s *MongoIssueStore) List(ctx context.Context, f IssueFilter) ([]models.Issue, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := s.issues.Find(ctx, issueFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer cursor.Close(ctx)

	issues := make([]models.Issue, 0)
	if err := cursor.All(ctx, &issues); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}
	return issues, nil
}

func (s *MongoIssueStore) Update(ctx context.Context, ticketID string, expected models.IssueStatus, u IssueUpdate) (*models.Issue, error) {
	set := bson.M{"updatedAt": s.now().UTC()}
	if u.Status != nil {
		set["status"] = *u.Status
	}
	if u.Zone != nil {
		set["zone"] = *u.Zone
	}
	if u.ResolutionImageRef != nil {
		set["resolutionImageRef"] = *u.ResolutionImageRef
	}

	var issue models.Issue
	err := s.issues.FindOneAndUpdate(ctx,
		bson.M{"ticketId": ticketID, "status": expected},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&issue)
	if err == nil {
		return &issue, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update issue %s: %w", ticketID, err)
	}

	n, err := s.issues.CountDocuments(ctx, bson.M{"ticketId": ticketID})
	if err != nil {
		return nil, fmt.Errorf("check issue %s: %w", ticketID, err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrStateChanged
}

func (s *MongoIssueStore) CountByStatus(ctx context.Context, f IssueFilter) (map[models.IssueStatus]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: issueFilter(f)}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}

	cursor, err := s.issues.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("count issues: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.IssueStatus `bson:"_id"`
		Count  int64              `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode issue counts: %w", err)
	}

	counts := make(map[models.IssueStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func issueFilter(f IssueFilter) bson.M {
	filter := bson.M{}
	if f.ReporterID != "" {
		filter["reporter.kind"] = models.ReporterRegistered
		filter["reporter.userId"] = f.ReporterID
	}
	if f.Zone != "" {
		filter["zone"] = f.Zone
	}
	return filter
}
