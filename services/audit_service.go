package services

import (
	"context"
	"time"

	"spotsort-be/apperr"
	"spotsort-be/metrics"
	"spotsort-be/models"
	"spotsort-be/store"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultAuditLimit is also the most entries one List call returns.
	DefaultAuditLimit = 200

	auditWriteTimeout = 5 * time.Second
)

// AuditRecorder appends entries for privileged changes. Recording never fails
// the surrounding operation.
type AuditRecorder struct {
	store   store.AuditStore
	logger  *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewAuditRecorder(st store.AuditStore, logger *logrus.Logger, m *metrics.Metrics) *AuditRecorder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuditRecorder{store: st, logger: logger, metrics: m, now: time.Now}
}

// Record is a no-op on a nil recorder.
func (a *AuditRecorder) Record(ctx context.Context, actor models.Identity, action models.ActionKind, detail, targetID string) {
	if a == nil {
		return
	}
	entry := &models.AuditEntry{
		Timestamp:  a.now().UTC(),
		ActorLabel: actor.ActorLabel(),
		Action:     action,
		Details:    detail,
		TargetID:   targetID,
	}

	// The entry is written even if the request that caused it was cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := a.store.Append(ctx, entry); err != nil {
		a.metrics.AuditWriteFailed()
		a.logger.WithError(err).WithFields(logrus.Fields{
			"action":    action,
			"target_id": targetID,
			"actor":     entry.ActorLabel,
		}).Error("failed to write audit entry")
	}
}

// List returns the newest entries, at most DefaultAuditLimit of them.
// limit <= 0 means DefaultAuditLimit.
func (a *AuditRecorder) List(ctx context.Context, caller models.Identity, limit int) ([]models.AuditEntry, error) {
	if caller.IsAnonymous() {
		return nil, apperr.Unauthorized("authentication required")
	}
	if !caller.HasRole(models.RoleAdmin) {
		return nil, apperr.Forbidden("only admins can read the audit log")
	}

	if limit <= 0 || limit > DefaultAuditLimit {
		limit = DefaultAuditLimit
	}

	entries, err := a.store.Recent(ctx, limit)
	if err != nil {
		return nil, apperr.Internal("read audit log", err)
	}
	return entries, nil
}
