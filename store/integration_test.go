//go:build integration

package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"spotsort-be/models"
	"spotsort-be/otp"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

type MongoStoreSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcmongo.MongoDBContainer
	client    *mongo.Client
	db        *mongo.Database
}

func TestMongoStoreSuite(t *testing.T) {
	suite.Run(t, new(MongoStoreSuite))
}

func (s *MongoStoreSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcmongo.Run(s.ctx, "mongo:7")
	s.Require().NoError(err)
	s.container = container

	uri, err := container.ConnectionString(s.ctx)
	s.Require().NoError(err)

	client, err := mongo.Connect(s.ctx, options.Client().ApplyURI(uri))
	s.Require().NoError(err)
	s.client = client
}

func (s *MongoStoreSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Disconnect(s.ctx)
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *MongoStoreSuite) SetupTest() {
	s.db = s.client.Database("spotsort_" + primitive.NewObjectID().Hex())
	s.Require().NoError(EnsureIndexes(s.ctx, s.db))
}

func (s *MongoStoreSuite) TearDownTest() {
	_ = s.db.Drop(s.ctx)
}

func (s *MongoStoreSuite) issue(t models.IssueType) *models.Issue {
	return models.NewIssue(models.IssueDetails{
		Title:       "Overflowing bin",
		IssueType:   t,
		Description: "Bin has not been cleared for a week",
		Location:    models.Location{Lat: 19.07, Lng: 72.87},
		Zone:        "North",
	}, models.RegisteredReporter("user-1"), "issues/bin.jpg")
}

func (s *MongoStoreSuite) TestConcurrentCreateUniqueTickets() {
	st := NewMongoIssueStore(s.db)

	const n = 20
	ids := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			issue := s.issue(models.Waste)
			if err := st.Create(s.ctx, issue); err != nil {
				return err
			}
			ids[i] = issue.TicketID
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	seen := make(map[string]bool, n)
	for _, id := range ids {
		s.False(seen[id])
		seen[id] = true
	}
	s.True(seen["W-000001"])
	s.True(seen["W-000020"])
}

func (s *MongoStoreSuite) TestCounterResyncAfterLoss() {
	st := NewMongoIssueStore(s.db)
	first := s.issue(models.Pothole)
	s.Require().NoError(st.Create(s.ctx, first))
	s.Equal("P-000001", first.TicketID)

	_, err := s.db.Collection(CountersCollection).DeleteMany(s.ctx, bson.M{})
	s.Require().NoError(err)

	second := s.issue(models.Pothole)
	s.Require().NoError(st.Create(s.ctx, second))
	s.Equal("P-000002", second.TicketID)
}

func (s *MongoStoreSuite) TestUpdateCompareAndSet() {
	st := NewMongoIssueStore(s.db)
	issue := s.issue(models.Pothole)
	s.Require().NoError(st.Create(s.ctx, issue))

	next := models.InProgress
	updated, err := st.Update(s.ctx, issue.TicketID, models.Pending, IssueUpdate{Status: &next})
	s.Require().NoError(err)
	s.Equal(models.InProgress, updated.Status)

	_, err = st.Update(s.ctx, issue.TicketID, models.Pending, IssueUpdate{Status: &next})
	s.ErrorIs(err, ErrStateChanged)

	_, err = st.Update(s.ctx, "P-424242", models.Pending, IssueUpdate{Status: &next})
	s.ErrorIs(err, ErrNotFound)

	counts, err := st.CountByStatus(s.ctx, IssueFilter{Zone: "North"})
	s.Require().NoError(err)
	s.Equal(int64(1), counts[models.InProgress])
}

func (s *MongoStoreSuite) TestPendingSupersedeAndClaim() {
	st := NewMongoPendingStore(s.db)
	now := time.Now().UTC()

	first := &models.PendingSubmission{SessionToken: "tok-1", EmailKey: "a@x.com", ExpiresAt: now.Add(15 * time.Minute)}
	second := &models.PendingSubmission{SessionToken: "tok-2", EmailKey: "a@x.com", ExpiresAt: now.Add(15 * time.Minute)}
	s.Require().NoError(st.Put(s.ctx, first))
	s.Require().NoError(st.Put(s.ctx, second))

	_, err := st.Get(s.ctx, "tok-1", now)
	s.ErrorIs(err, ErrNotFound)

	got, err := st.Get(s.ctx, "tok-2", now)
	s.Require().NoError(err)

	_, err = st.Get(s.ctx, "tok-2", now.Add(time.Hour))
	s.ErrorIs(err, ErrNotFound, "expired records read as absent before the TTL reaper runs")

	s.Require().NoError(st.Claim(s.ctx, "tok-2"))
	s.ErrorIs(st.Claim(s.ctx, "tok-2"), ErrNotFound)
	s.Require().NoError(st.Restore(s.ctx, got))
	_, err = st.Get(s.ctx, "tok-2", now)
	s.NoError(err)
}

func (s *MongoStoreSuite) TestUsersAndAudit() {
	users := NewMongoUserStore(s.db)
	u := &models.User{Email: "c@x.com", Role: models.RoleCitizen}
	s.Require().NoError(users.Create(s.ctx, u))
	s.ErrorIs(users.Create(s.ctx, &models.User{Email: "c@x.com"}), ErrDuplicate)
	s.Require().NoError(users.MarkVerified(s.ctx, u.ID.Hex()))

	audit := NewMongoAuditStore(s.db)
	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, a := range []models.ActionKind{models.ActionAssignIssue, models.ActionCitizenVerify} {
		s.Require().NoError(audit.Append(s.ctx, &models.AuditEntry{Action: a, Timestamp: base.Add(time.Duration(i) * time.Second)}))
	}
	entries, err := audit.Recent(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(models.ActionCitizenVerify, entries[0].Action)
}

func TestRedisCodeStore(t *testing.T) {
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	defer func() { _ = container.Terminate(ctx) }()

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("redis connection string: %v", err)
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	st := NewRedisCodeStore(client, "test-otp")
	rec := otp.Record{Hash: "h", ExpiresAt: time.Now().Add(time.Minute)}
	if err := st.Put(ctx, "signup:a@x.com", rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := st.Get(ctx, "signup:a@x.com")
	if err != nil || got.Hash != "h" {
		t.Fatalf("get = %+v, %v", got, err)
	}

	ttl, err := client.TTL(ctx, "test-otp:signup:a@x.com").Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %v, %v", ttl, err)
	}

	if consumed, err := st.Consume(ctx, "signup:a@x.com", "stale"); err != nil || consumed {
		t.Fatalf("consume with stale hash = %v, %v", consumed, err)
	}

	var wins atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			consumed, err := st.Consume(ctx, "signup:a@x.com", "h")
			if consumed {
				wins.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if wins.Load() != 1 {
		t.Fatalf("consumed %d times, want exactly once", wins.Load())
	}
	if _, err := st.Get(ctx, "signup:a@x.com"); err != otp.ErrNotFound {
		t.Fatalf("expected otp.ErrNotFound, got %v", err)
	}

	if err := st.Put(ctx, "signup:b@x.com", rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.Delete(ctx, "signup:b@x.com"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.Get(ctx, "signup:b@x.com"); err != otp.ErrNotFound {
		t.Fatalf("expected otp.ErrNotFound, got %v", err)
	}
}
