package services

import (
	"context"
	"errors"
	"time"

	"spotsort-be/apperr"
	"spotsort-be/models"
	"spotsort-be/notify"
	"spotsort-be/otp"
	"spotsort-be/storage"
	"spotsort-be/store"
	"spotsort-be/utils"

	"github.com/sirupsen/logrus"
)

const (
	pathDirect    = "direct"
	pathAnonymous = "anonymous"
)

// SubmissionService turns reports into issues, either straight from an
// authenticated citizen or through the two-step anonymous email check.
type SubmissionService struct {
	deps Deps
}

func NewSubmissionService(deps Deps) *SubmissionService {
	return &SubmissionService{deps: deps.withDefaults()}
}

// SubmitDirect validates, uploads the evidence and persists a Pending issue
// owned by the caller.
func (s *SubmissionService) SubmitDirect(ctx context.Context, caller models.Identity, details models.IssueDetails, img storage.Image) (*models.Issue, error) {
	if caller.IsAnonymous() {
		return nil, apperr.Unauthorized("authentication required")
	}
	if !caller.HasRole(models.RoleCitizen) {
		return nil, apperr.Forbidden("only citizens can submit reports")
	}
	if err := checkImage(img, "issueImage", s.deps.Settings.MaxImageBytes); err != nil {
		return nil, err
	}
	if err := validateInput(details); err != nil {
		return nil, err
	}

	issue, err := s.persist(ctx, details, models.RegisteredReporter(caller.UserID), img)
	if err != nil {
		return nil, err
	}

	s.deps.Metrics.IssueCreated(string(issue.IssueType), pathDirect)
	s.deps.Logger.WithFields(logrus.Fields{
		"ticket_id": issue.TicketID,
		"zone":      issue.Zone,
	}).Info("issue submitted")
	return issue, nil
}

// BeginAnonymous stages the report, replacing any earlier one from the same
// email, and mails a verification code. Only the session token is returned.
func (s *SubmissionService) BeginAnonymous(ctx context.Context, contact models.AnonymousReporter, details models.IssueDetails) (string, error) {
	if err := validateInput(contact); err != nil {
		return "", err
	}
	if err := validateInput(details); err != nil {
		return "", err
	}

	code, hash, err := s.deps.Challenge.Mint()
	if err != nil {
		return "", apperr.Internal("create verification code", err)
	}

	now := s.deps.Clock()
	ttl := s.deps.Settings.PendingTTL
	p := &models.PendingSubmission{
		SessionToken: utils.NanoID(),
		EmailKey:     models.EmailKey(contact.Email),
		Reporter:     contact,
		Details:      details,
		OtpHash:      hash,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
	}
	if err := s.deps.Pending.Put(ctx, p); err != nil {
		return "", apperr.Internal("store pending submission", err)
	}

	msg, err := notify.ReportCode(contact.Email, contact.Name, code, int(ttl/time.Minute))
	if err == nil {
		err = s.deps.Notifier.Deliver(ctx, msg)
	}
	if err != nil {
		if cerr := s.deps.Pending.Claim(context.WithoutCancel(ctx), p.SessionToken); cerr != nil && !errors.Is(cerr, store.ErrNotFound) {
			s.deps.Logger.WithError(cerr).Warn("failed to discard pending submission after mail failure")
		}
		return "", apperr.Upstream("could not send verification code", err)
	}

	s.deps.Logger.WithField("email_to", contact.Email).Info("anonymous report awaiting verification")
	return p.SessionToken, nil
}

// CompleteAnonymous checks the code for a staged report and materialises it.
// The pending record is claimed before the issue is written so that one
// token can never yield two issues; failures after the claim put it back.
func (s *SubmissionService) CompleteAnonymous(ctx context.Context, token, code string, img storage.Image) (string, error) {
	if token == "" {
		return "", apperr.NotFound("verification session not found or expired")
	}

	p, err := s.deps.Pending.Get(ctx, token, s.deps.Clock())
	if errors.Is(err, store.ErrNotFound) {
		return "", apperr.NotFound("verification session not found or expired")
	}
	if err != nil {
		return "", apperr.Internal("load pending submission", err)
	}

	ok := s.deps.Challenge.Match(p.OtpHash, code)
	s.deps.Metrics.OtpChecked(string(otp.PurposeAnonymousReport), ok)
	if !ok {
		return "", apperr.InvalidCode("invalid verification code")
	}

	if err := checkImage(img, "issueImage", s.deps.Settings.MaxImageBytes); err != nil {
		return "", err
	}

	if err := s.deps.Pending.Claim(ctx, token); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", apperr.NotFound("verification session not found or expired")
		}
		return "", apperr.Internal("claim pending submission", err)
	}

	issue, err := s.persist(ctx, p.Details, models.AnonymousReporterOf(p.Reporter), img)
	if err != nil {
		s.restore(ctx, p)
		return "", err
	}

	s.deps.Metrics.IssueCreated(string(issue.IssueType), pathAnonymous)
	log := s.deps.Logger.WithFields(logrus.Fields{
		"ticket_id": issue.TicketID,
		"email_to":  p.Reporter.Email,
	})
	log.Info("anonymous issue created")

	msg, err := notify.TicketConfirmation(p.Reporter.Email, p.Reporter.Name, issue.TicketID)
	if err == nil {
		err = s.deps.Notifier.Enqueue(msg)
	}
	if err != nil {
		log.WithError(err).Warn("failed to queue ticket confirmation")
	}
	return issue.TicketID, nil
}

// persist uploads the image and creates the issue, removing the image again
// if the issue cannot be written.
func (s *SubmissionService) persist(ctx context.Context, details models.IssueDetails, reporter models.Reporter, img storage.Image) (*models.Issue, error) {
	ref, err := s.deps.Images.Put(ctx, storage.KindIssue, img)
	if err != nil {
		return nil, apperr.Upstream("could not store issue image", err)
	}

	issue := models.NewIssue(details, reporter, ref)
	if err := s.deps.Issues.Create(ctx, issue); err != nil {
		if derr := s.deps.Images.Delete(context.WithoutCancel(ctx), ref); derr != nil {
			s.deps.Logger.WithError(derr).WithField("image_ref", ref).Warn("failed to remove orphaned issue image")
		}
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflict("could not allocate a ticket id, please retry")
		}
		return nil, apperr.Internal("create issue", err)
	}
	return issue, nil
}

func (s *SubmissionService) restore(ctx context.Context, p *models.PendingSubmission) {
	if err := s.deps.Pending.Restore(context.WithoutCancel(ctx), p); err != nil {
		s.deps.Logger.WithError(err).WithField("email_to", p.Reporter.Email).Error("failed to restore pending submission")
	}
}
