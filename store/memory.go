package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"spotsort-be/models"
	"spotsort-be/otp"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InMemoryIssueStore numbers tickets as count-of-type + 1 under a single lock.
type InMemoryIssueStore struct {
	mu     sync.RWMutex
	issues map[string]*models.Issue
	counts map[models.IssueType]int64
	now    func() time.Time
}

func NewInMemoryIssueStore() *InMemoryIssueStore {
	return &InMemoryIssueStore{
		issues: make(map[string]*models.Issue),
		counts: make(map[models.IssueType]int64),
		now:    time.Now,
	}
}

func (s *InMemoryIssueStore) Create(_ context.Context, issue *models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.counts[issue.IssueType] + 1
	ticketID := models.FormatTicketID(issue.IssueType, seq)
	if _, exists := s.issues[ticketID]; exists {
		return ErrDuplicate
	}

	now := s.now()
	issue.ID = primitive.NewObjectID()
	issue.TicketID = ticketID
	issue.Seq = seq
	issue.CreatedAt, issue.UpdatedAt = now, now
	if issue.Status == "" {
		issue.Status = models.Pending
	}

	stored := *issue
	s.issues[ticketID] = &stored
	s.counts[issue.IssueType] = seq
	return nil
}

func (s *InMemoryIssueStore) FindByTicketID(_ context.Context, ticketID string) (*models.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issue, ok := s.issues[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *issue
	return &cp, nil
}

func (s *InMemoryIssueStore) List(_ context.Context, f IssueFilter) ([]models.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Issue, 0)
	for _, issue := range s.issues {
		if matches(issue, f) {
			out = append(out, *issue)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() > out[j].ID.Hex()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryIssueStore) Update(_ context.Context, ticketID string, expected models.IssueStatus, u IssueUpdate) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	if issue.Status != expected {
		return nil, ErrStateChanged
	}
	if u.Status != nil {
		issue.Status = *u.Status
	}
	if u.Zone != nil {
		issue.Zone = *u.Zone
	}
	if u.ResolutionImageRef != nil {
		issue.ResolutionImageRef = *u.ResolutionImageRef
	}
	issue.UpdatedAt = s.now()

	cp := *issue
	return &cp, nil
}

func (s *InMemoryIssueStore) CountByStatus(_ context.Context, f IssueFilter) (map[models.IssueStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.IssueStatus]int64)
	for _, issue := range s.issues {
		if matches(issue, f) {
			counts[issue.Status]++
		}
	}
	return counts, nil
}

func matches(issue *models.Issue, f IssueFilter) bool {
	if f.ReporterID != "" && !issue.Reporter.IsUser(f.ReporterID) {
		return false
	}
	if f.Zone != "" && issue.Zone != f.Zone {
		return false
	}
	return true
}

type InMemoryPendingStore struct {
	mu      sync.Mutex
	byToken map[string]*models.PendingSubmission
	byEmail map[string]string
}

func NewInMemoryPendingStore() *InMemoryPendingStore {
	return &InMemoryPendingStore{
		byToken: make(map[string]*models.PendingSubmission),
		byEmail: make(map[string]string),
	}
}

func (s *InMemoryPendingStore) Put(_ context.Context, p *models.PendingSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byEmail[p.EmailKey]; ok {
		delete(s.byToken, old)
	}
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	cp := *p
	s.byToken[p.SessionToken] = &cp
	s.byEmail[p.EmailKey] = p.SessionToken
	return nil
}

func (s *InMemoryPendingStore) Get(_ context.Context, token string, now time.Time) (*models.PendingSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Expired(now) {
		s.remove(p)
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryPendingStore) Claim(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byToken[token]
	if !ok {
		return ErrNotFound
	}
	s.remove(p)
	return nil
}

func (s *InMemoryPendingStore) Restore(_ context.Context, p *models.PendingSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, newer := s.byEmail[p.EmailKey]; newer {
		return nil
	}
	cp := *p
	s.byToken[p.SessionToken] = &cp
	s.byEmail[p.EmailKey] = p.SessionToken
	return nil
}

func (s *InMemoryPendingStore) remove(p *models.PendingSubmission) {
	delete(s.byToken, p.SessionToken)
	if s.byEmail[p.EmailKey] == p.SessionToken {
		delete(s.byEmail, p.EmailKey)
	}
}

type InMemoryAuditStore struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func NewInMemoryAuditStore() *InMemoryAuditStore {
	return &InMemoryAuditStore{}
}

func (s *InMemoryAuditStore) Append(_ context.Context, e *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	s.entries = append(s.entries, *e)
	return nil
}

func (s *InMemoryAuditStore) Recent(_ context.Context, limit int) ([]models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AuditEntry, 0, min(limit, len(s.entries)))
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]*models.User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[primitive.ObjectID]*models.User)}
}

func (s *InMemoryUserStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[oid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryUserStore) DeleteUnverified(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, u := range s.users {
		if u.Email == email && !u.Verified {
			delete(s.users, id)
		}
	}
	return nil
}

func (s *InMemoryUserStore) MarkVerified(_ context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[oid]
	if !ok {
		return ErrNotFound
	}
	u.Verified = true
	u.UpdatedAt = time.Now()
	return nil
}

// InMemoryCodeStore is an otp.CodeStore for tests and single-process runs.
type InMemoryCodeStore struct {
	mu      sync.Mutex
	records map[string]otp.Record
}

func NewInMemoryCodeStore() *InMemoryCodeStore {
	return &InMemoryCodeStore{records: make(map[string]otp.Record)}
}

func (s *InMemoryCodeStore) Put(_ context.Context, key string, rec otp.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
	return nil
}

func (s *InMemoryCodeStore) Get(_ context.Context, key string) (otp.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return otp.Record{}, otp.ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryCodeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *InMemoryCodeStore) Consume(_ context.Context, key, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || rec.Hash != hash {
		return false, nil
	}
	delete(s.records, key)
	return true, nil
}
