package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spotsort-be/apperr"
	"spotsort-be/models"
	"spotsort-be/storage"
	"spotsort-be/store"
)

// ResolutionService runs the two-sided close: staff upload proof of the fix,
// then the reporter confirms it.
type ResolutionService struct {
	deps Deps
}

func NewResolutionService(deps Deps) *ResolutionService {
	return &ResolutionService{deps: deps.withDefaults()}
}

// Resolve moves an In Progress issue to Awaiting Verification with the
// resolution photo attached.
func (s *ResolutionService) Resolve(ctx context.Context, caller models.Identity, ticketID string, img storage.Image) (*models.Issue, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	if err := checkImage(img, "resolutionImage", s.deps.Settings.MaxImageBytes); err != nil {
		return nil, err
	}

	issue, err := loadIssue(ctx, s.deps.Issues, ticketID)
	if err != nil {
		return nil, err
	}
	if !caller.CanWorkZone(issue.Zone) {
		return nil, apperr.Forbidden("issue belongs to another zone")
	}
	if issue.Status != models.InProgress {
		return nil, wrongState(issue, models.InProgress)
	}

	ref, err := s.deps.Images.Put(ctx, storage.KindResolution, img)
	if err != nil {
		return nil, apperr.Upstream("could not store resolution image", err)
	}

	next := models.AwaitingVerification
	updated, err := s.deps.Issues.Update(ctx, ticketID, models.InProgress, store.IssueUpdate{
		Status:             &next,
		ResolutionImageRef: &ref,
	})
	if err != nil {
		if derr := s.deps.Images.Delete(context.WithoutCancel(ctx), ref); derr != nil {
			s.deps.Logger.WithError(derr).WithField("image_ref", ref).Warn("failed to remove orphaned resolution image")
		}
		return nil, transitionErr(err, ticketID)
	}

	s.deps.recordChange(ctx, caller, models.ActionUploadResolution, issue.Status, updated,
		fmt.Sprintf("Uploaded resolution image for %s", ticketID))
	return updated, nil
}

// VerifyByEmail closes an anonymous report when email matches the one it was
// filed with. Matching is exact.
func (s *ResolutionService) VerifyByEmail(ctx context.Context, ticketID, email string) (*models.Issue, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperr.Validation("email", "email is required")
	}

	issue, err := loadIssue(ctx, s.deps.Issues, ticketID)
	if err != nil {
		return nil, err
	}
	if issue.Status != models.AwaitingVerification {
		return nil, wrongState(issue, models.AwaitingVerification)
	}
	if !issue.Reporter.MatchesEmail(email) {
		return nil, apperr.Forbidden("email does not match the reporter of this issue")
	}

	return s.close(ctx, models.Identity{}, issue, "Reporter confirmed resolution by email")
}

// VerifyByIdentity closes a registered citizen's own report.
func (s *ResolutionService) VerifyByIdentity(ctx context.Context, caller models.Identity, ticketID string) (*models.Issue, error) {
	if caller.IsAnonymous() {
		return nil, apperr.Unauthorized("authentication required")
	}
	if !caller.HasRole(models.RoleCitizen) {
		return nil, apperr.Forbidden("only the reporting citizen can verify a resolution")
	}

	issue, err := loadIssue(ctx, s.deps.Issues, ticketID)
	if err != nil {
		return nil, err
	}
	if issue.Status != models.AwaitingVerification {
		return nil, wrongState(issue, models.AwaitingVerification)
	}
	if !issue.Reporter.IsUser(caller.UserID) {
		return nil, apperr.Forbidden("only the reporting citizen can verify a resolution")
	}

	return s.close(ctx, caller, issue, "Citizen confirmed resolution")
}

func (s *ResolutionService) close(ctx context.Context, actor models.Identity, issue *models.Issue, detail string) (*models.Issue, error) {
	next := models.Closed
	updated, err := s.deps.Issues.Update(ctx, issue.TicketID, models.AwaitingVerification, store.IssueUpdate{Status: &next})
	if err != nil {
		return nil, transitionErr(err, issue.TicketID)
	}

	s.deps.recordChange(ctx, actor, models.ActionCitizenVerify, issue.Status, updated, detail)
	return updated, nil
}

func requireStaff(caller models.Identity) error {
	if caller.IsAnonymous() {
		return apperr.Unauthorized("authentication required")
	}
	if !caller.HasRole(models.RoleAuthority, models.RoleAdmin) {
		return apperr.Forbidden("only authorities and admins can do this")
	}
	return nil
}

func wrongState(issue *models.Issue, want models.IssueStatus) error {
	return apperr.WrongState(fmt.Sprintf("issue %s is %s, expected %s", issue.TicketID, issue.Status, want))
}

// transitionErr maps store failures of a strict transition. A concurrent
// change means the precondition no longer holds.
func transitionErr(err error, ticketID string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("issue " + ticketID + " not found")
	case errors.Is(err, store.ErrStateChanged):
		return apperr.WrongState("issue " + ticketID + " changed status concurrently")
	default:
		return apperr.Internal("update issue", err)
	}
}
