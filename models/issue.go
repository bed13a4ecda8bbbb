package models

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IssueType enum
type IssueType string

const (
	Pothole IssueType = "pothole"
	Waste   IssueType = "waste"
)

func (t IssueType) Valid() bool {
	return t == Pothole || t == Waste
}

// Prefix is the uppercased first letter used in ticket ids.
func (t IssueType) Prefix() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t)[:1])
}

// IssueStatus enum
type IssueStatus string

const (
	Pending              IssueStatus = "Pending"
	InProgress           IssueStatus = "In Progress"
	AwaitingVerification IssueStatus = "Awaiting Verification"
	Closed               IssueStatus = "Closed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []IssueStatus{Pending, InProgress, AwaitingVerification, Closed}

func ParseIssueStatus(s string) (IssueStatus, bool) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// lifecycle holds the forward edges walked by the strict helpers
// (assign, resolve, verify). The administrative override bypasses it.
var lifecycle = map[IssueStatus]IssueStatus{
	Pending:              InProgress,
	InProgress:           AwaitingVerification,
	AwaitingVerification: Closed,
}

// CanAdvance reports whether to is the next lifecycle step after from.
func CanAdvance(from, to IssueStatus) bool {
	next, ok := lifecycle[from]
	return ok && next == to
}

type Location struct {
	Lat float64 `bson:"lat" json:"lat" validate:"latitude"`
	Lng float64 `bson:"lng" json:"lng" validate:"longitude"`
}

// IssueDetails is everything a reporter supplies about an issue apart from evidence.
type IssueDetails struct {
	Title       string    `bson:"title" json:"title" validate:"required,max=200"`
	IssueType   IssueType `bson:"issueType" json:"issueType" validate:"required,oneof=pothole waste"`
	Description string    `bson:"description" json:"description" validate:"required,max=2000"`
	Location    Location  `bson:"location" json:"location"`
	Zone        string    `bson:"zone" json:"zone" validate:"required,max=100"`
}

type ReporterKind string

const (
	ReporterRegistered ReporterKind = "registered"
	ReporterAnonymous  ReporterKind = "anonymous"
)

type AnonymousReporter struct {
	Name   string `bson:"name" json:"name" validate:"required,max=100"`
	Email  string `bson:"email" json:"email" validate:"required,email"`
	Mobile string `bson:"mobile" json:"mobile" validate:"required,max=20"`
}

// Reporter is a tagged variant: Kind selects which arm is populated.
// Build it with RegisteredReporter or AnonymousReporterOf.
type Reporter struct {
	Kind      ReporterKind       `bson:"kind" json:"kind"`
	UserID    string             `bson:"userId,omitempty" json:"userId,omitempty"`
	Anonymous *AnonymousReporter `bson:"anonymous,omitempty" json:"anonymous,omitempty"`
}

var ErrInvalidReporter = errors.New("reporter must be exactly one of registered user or anonymous contact")

func RegisteredReporter(userID string) Reporter {
	return Reporter{Kind: ReporterRegistered, UserID: userID}
}

func AnonymousReporterOf(contact AnonymousReporter) Reporter {
	c := contact
	return Reporter{Kind: ReporterAnonymous, Anonymous: &c}
}

func (r Reporter) Validate() error {
	switch r.Kind {
	case ReporterRegistered:
		if r.UserID == "" || r.Anonymous != nil {
			return ErrInvalidReporter
		}
	case ReporterAnonymous:
		if r.Anonymous == nil || r.UserID != "" || r.Anonymous.Email == "" {
			return ErrInvalidReporter
		}
	default:
		return ErrInvalidReporter
	}
	return nil
}

func (r Reporter) IsUser(userID string) bool {
	return r.Kind == ReporterRegistered && userID != "" && r.UserID == userID
}

// MatchesEmail compares exactly against the anonymous reporter's email.
func (r Reporter) MatchesEmail(email string) bool {
	return r.Kind == ReporterAnonymous && r.Anonymous != nil && email != "" && r.Anonymous.Email == email
}

// Issue represents a civic issue reported by a citizen or an anonymous reporter
type Issue struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TicketID           string             `bson:"ticketId" json:"ticketId"`
	Seq                int64              `bson:"seq" json:"-"`
	IssueType          IssueType          `bson:"issueType" json:"issueType"`
	Title              string             `bson:"title" json:"title"`
	Description        string             `bson:"description" json:"description"`
	Location           Location           `bson:"location" json:"location"`
	Zone               string             `bson:"zone" json:"zone"`
	Status             IssueStatus        `bson:"status" json:"status"`
	Reporter           Reporter           `bson:"reporter" json:"reporter"`
	IssueImageRef      string             `bson:"issueImageRef" json:"issueImageRef"`
	ResolutionImageRef string             `bson:"resolutionImageRef,omitempty" json:"resolutionImageRef,omitempty"`
	CreatedAt          time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewIssue builds a Pending issue; ticket id and timestamps are assigned by the store.
func NewIssue(d IssueDetails, reporter Reporter, imageRef string) *Issue {
	return &Issue{
		IssueType:     d.IssueType,
		Title:         d.Title,
		Description:   d.Description,
		Location:      d.Location,
		Zone:          d.Zone,
		Status:        Pending,
		Reporter:      reporter,
		IssueImageRef: imageRef,
	}
}

// TrackedIssue is the public view of an issue; it never carries reporter contact details.
type TrackedIssue struct {
	TicketID           string      `json:"ticketId"`
	IssueType          IssueType   `json:"issueType"`
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	Location           Location    `json:"location"`
	Zone               string      `json:"zone"`
	Status             IssueStatus `json:"status"`
	IssueImageRef      string      `json:"issueImageRef"`
	ResolutionImageRef string      `json:"resolutionImageRef,omitempty"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

func (i *Issue) Public() TrackedIssue {
	return TrackedIssue{
		TicketID:           i.TicketID,
		IssueType:          i.IssueType,
		Title:              i.Title,
		Description:        i.Description,
		Location:           i.Location,
		Zone:               i.Zone,
		Status:             i.Status,
		IssueImageRef:      i.IssueImageRef,
		ResolutionImageRef: i.ResolutionImageRef,
		CreatedAt:          i.CreatedAt,
		UpdatedAt:          i.UpdatedAt,
	}
}
