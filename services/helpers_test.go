package services

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"

	"spotsort-be/models"
	"spotsort-be/notify"
	"spotsort-be/storage"
	"spotsort-be/store"

	"github.com/sirupsen/logrus"
)

var (
	citizen       = models.Identity{UserID: "citizen-1", Email: "asha@example.com", Role: models.RoleCitizen}
	otherCitizen  = models.Identity{UserID: "citizen-2", Email: "ravi@example.com", Role: models.RoleCitizen}
	authorityEast = models.Identity{UserID: "auth-east", Email: "east@city.gov", Role: models.RoleAuthority, Zone: "East"}
	authorityWest = models.Identity{UserID: "auth-west", Email: "west@city.gov", Role: models.RoleAuthority, Zone: "West"}
	admin         = models.Identity{UserID: "admin-1", Email: "admin@city.gov", Role: models.RoleAdmin}
)

var codePattern = regexp.MustCompile(`<h2>([0-9]{6})</h2>`)

// codeFrom pulls the verification code out of a rendered mail body.
func codeFrom(msg notify.Message) string {
	m := codePattern.FindStringSubmatch(msg.HTMLBody)
	if m == nil {
		return ""
	}
	return m[1]
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func photo() storage.Image {
	return storage.Image{
		Reader:      strings.NewReader("\xff\xd8\xff\xe0jpeg"),
		Size:        8,
		ContentType: "image/jpeg",
		Filename:    "photo.jpg",
	}
}

func details(t models.IssueType, zone string) models.IssueDetails {
	return models.IssueDetails{
		Title:       "Hazard on Main Street",
		IssueType:   t,
		Description: "Needs attention before the monsoon",
		Location:    models.Location{Lat: 18.52, Lng: 73.85},
		Zone:        zone,
	}
}

func contact(email string) models.AnonymousReporter {
	return models.AnonymousReporter{Name: "Meera", Email: email, Mobile: "9800000000"}
}

// failingIssueStore fails every Create.
type failingIssueStore struct {
	*store.InMemoryIssueStore
	err error
}

func (f *failingIssueStore) Create(context.Context, *models.Issue) error { return f.err }

type failingAuditStore struct{}

func (failingAuditStore) Append(context.Context, *models.AuditEntry) error {
	return errors.New("audit store down")
}

func (failingAuditStore) Recent(context.Context, int) ([]models.AuditEntry, error) {
	return nil, errors.New("audit store down")
}

// trackingPendingStore remembers the last token written.
type trackingPendingStore struct {
	*store.InMemoryPendingStore
	mu   sync.Mutex
	last string
}

func (t *trackingPendingStore) Put(ctx context.Context, p *models.PendingSubmission) error {
	t.mu.Lock()
	t.last = p.SessionToken
	t.mu.Unlock()
	return t.InMemoryPendingStore.Put(ctx, p)
}

func (t *trackingPendingStore) lastToken() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
