package store

import (
	"context"
	"errors"
	"time"

	"spotsort-be/models"
)

// Facts reported by stores; services translate them into apperr kinds.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("duplicate")
	ErrStateChanged = errors.New("state changed")
)

// IssueFilter scopes a listing. Zero fields match everything.
type IssueFilter struct {
	ReporterID string
	Zone       string
}

// IssueUpdate lists the mutable fields of an issue; nil fields are left alone.
type IssueUpdate struct {
	Status             *models.IssueStatus
	Zone               *string
	ResolutionImageRef *string
}

type IssueStore interface {
	// Create assigns the ticket id and timestamps and persists the issue.
	// The ticket id is never reused across persisted issues.
	Create(ctx context.Context, issue *models.Issue) error
	FindByTicketID(ctx context.Context, ticketID string) (*models.Issue, error)
	// List returns matching issues newest first.
	List(ctx context.Context, f IssueFilter) ([]models.Issue, error)
	// Update applies u only while the issue is still in status expected,
	// returning ErrStateChanged otherwise.
	Update(ctx context.Context, ticketID string, expected models.IssueStatus, u IssueUpdate) (*models.Issue, error)
	CountByStatus(ctx context.Context, f IssueFilter) (map[models.IssueStatus]int64, error)
}

type PendingStore interface {
	// Put stores p, replacing any pending submission with the same EmailKey.
	Put(ctx context.Context, p *models.PendingSubmission) error
	// Get returns the live submission for token; expired ones are ErrNotFound.
	Get(ctx context.Context, token string, now time.Time) (*models.PendingSubmission, error)
	// Claim removes the submission, failing with ErrNotFound if someone else already did.
	Claim(ctx context.Context, token string) error
	// Restore puts back a claimed submission unless a newer one for the same email exists.
	Restore(ctx context.Context, p *models.PendingSubmission) error
}

type AuditStore interface {
	Append(ctx context.Context, e *models.AuditEntry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	DeleteUnverified(ctx context.Context, email string) error
	MarkVerified(ctx context.Context, id string) error
}
