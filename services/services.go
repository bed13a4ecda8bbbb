// Package services holds the issue lifecycle engine: submission, the status
// state machine, zone authorization, resolution verification and audit.
// Every operation takes the resolved caller explicitly.
package services

//go:generate mockgen -source=services.go -destination=mocks/mocks.go -package=mocks Notifier,ImageStore

import (
	"context"
	"errors"
	"time"

	"spotsort-be/apperr"
	"spotsort-be/metrics"
	"spotsort-be/models"
	"spotsort-be/notify"
	"spotsort-be/otp"
	"spotsort-be/storage"
	"spotsort-be/store"

	"github.com/sirupsen/logrus"
)

// Notifier sends mail. Deliver blocks until the message is handed to the
// mail server; Enqueue only queues it.
type Notifier interface {
	Deliver(ctx context.Context, msg notify.Message) error
	Enqueue(msg notify.Message) error
}

// ImageStore persists evidence photos and returns an opaque reference.
type ImageStore interface {
	Put(ctx context.Context, kind storage.Kind, img storage.Image) (string, error)
	Delete(ctx context.Context, ref string) error
}

type Settings struct {
	PendingTTL    time.Duration
	SignupOtpTTL  time.Duration
	MaxImageBytes int64
}

// Deps is the shared wiring for every service; each constructor uses the
// fields it needs.
type Deps struct {
	Issues    store.IssueStore
	Pending   store.PendingStore
	Users     store.UserStore
	Audit     *AuditRecorder
	Challenge *otp.Challenge
	Images    ImageStore
	Notifier  Notifier
	Logger    *logrus.Logger
	Metrics   *metrics.Metrics
	Clock     func() time.Time
	Settings  Settings
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Settings.PendingTTL <= 0 {
		d.Settings.PendingTTL = 15 * time.Minute
	}
	if d.Settings.SignupOtpTTL <= 0 {
		d.Settings.SignupOtpTTL = 10 * time.Minute
	}
	return d
}

// checkImage rejects missing, non-image and oversized uploads.
func checkImage(img storage.Image, field string, maxBytes int64) error {
	if !img.Present() {
		return apperr.Validation(field, field+" is required")
	}
	if !img.IsImage() {
		return apperr.Validation(field, field+" must be an image")
	}
	if maxBytes > 0 && img.Size > maxBytes {
		return apperr.Validation(field, field+" is too large")
	}
	return nil
}

// loadIssue maps store misses to apperr.NotFound.
func loadIssue(ctx context.Context, issues store.IssueStore, ticketID string) (*models.Issue, error) {
	issue, err := issues.FindByTicketID(ctx, ticketID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("issue " + ticketID + " not found")
	}
	if err != nil {
		return nil, apperr.Internal("load issue", err)
	}
	return issue, nil
}

// recordChange writes the audit entry, metric and log line for an issue change.
func (d Deps) recordChange(ctx context.Context, actor models.Identity, action models.ActionKind, from models.IssueStatus, issue *models.Issue, detail string) {
	if from != issue.Status {
		d.Metrics.StatusChanged(string(from), string(issue.Status))
	}
	d.Audit.Record(ctx, actor, action, detail, issue.TicketID)
	d.Logger.WithFields(logrus.Fields{
		"ticket_id": issue.TicketID,
		"action":    action,
		"status":    issue.Status,
	}).Info("issue updated")
}
