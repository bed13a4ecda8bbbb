package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spotsort-be/apperr"
	"spotsort-be/models"
	"spotsort-be/store"
)

// maxReassignAttempts bounds the reload-and-retry loop when an issue changes
// status between read and write during a reassignment.
const maxReassignAttempts = 3

// IssueService covers listing, public tracking and the staff-side status
// changes: the strict assign step, admin reassignment and the override.
type IssueService struct {
	deps Deps
}

func NewIssueService(deps Deps) *IssueService {
	return &IssueService{deps: deps.withDefaults()}
}

// StatusChange is the body of the administrative override. At least one
// field must be set.
type StatusChange struct {
	Status *string `json:"status"`
	Zone   *string `json:"zone"`
}

type IssueStats struct {
	Total    int64                        `json:"total"`
	ByStatus map[models.IssueStatus]int64 `json:"byStatus"`
}

func (s *IssueService) ListForCitizen(ctx context.Context, caller models.Identity) ([]models.Issue, error) {
	if caller.IsAnonymous() {
		return nil, apperr.Unauthorized("authentication required")
	}
	if !caller.HasRole(models.RoleCitizen) {
		return nil, apperr.Forbidden("only citizens have personal reports")
	}

	issues, err := s.deps.Issues.List(ctx, store.IssueFilter{ReporterID: caller.UserID})
	if err != nil {
		return nil, apperr.Internal("list reports", err)
	}
	return issues, nil
}

// ListForWork returns the caller's zone for authorities and everything for admins.
func (s *IssueService) ListForWork(ctx context.Context, caller models.Identity) ([]models.Issue, error) {
	filter, err := workScope(caller)
	if err != nil {
		return nil, err
	}

	issues, err := s.deps.Issues.List(ctx, filter)
	if err != nil {
		return nil, apperr.Internal("list issues", err)
	}
	return issues, nil
}

// Stats counts issues per status within the same scope as ListForWork.
func (s *IssueService) Stats(ctx context.Context, caller models.Identity) (*IssueStats, error) {
	filter, err := workScope(caller)
	if err != nil {
		return nil, err
	}

	counts, err := s.deps.Issues.CountByStatus(ctx, filter)
	if err != nil {
		return nil, apperr.Internal("count issues", err)
	}

	stats := &IssueStats{ByStatus: make(map[models.IssueStatus]int64, len(models.Statuses))}
	for _, st := range models.Statuses {
		stats.ByStatus[st] = counts[st]
		stats.Total += counts[st]
	}
	return stats, nil
}

// Track is the public lookup; the view carries no reporter details.
func (s *IssueService) Track(ctx context.Context, ticketID string) (*models.TrackedIssue, error) {
	if !models.ValidTicketID(ticketID) {
		return nil, apperr.NotFound("issue " + ticketID + " not found")
	}
	issue, err := loadIssue(ctx, s.deps.Issues, ticketID)
	if err != nil {
		return nil, err
	}
	view := issue.Public()
	return &view, nil
}

// Assign takes a Pending issue into work.
func (s *IssueService) Assign(ctx context.Context, caller models.Identity, ticketID string) (*models.Issue, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}

	issue, err := loadIssue(ctx, s.deps.Issues, ticketID)
	if err != nil {
		return nil, err
	}
	if !caller.CanWorkZone(issue.Zone) {
		return nil, apperr.Forbidden("issue belongs to another zone")
	}
	if !models.CanAdvance(issue.Status, models.InProgress) {
		return nil, wrongState(issue, models.Pending)
	}

	next := models.InProgress
	updated, err := s.deps.Issues.Update(ctx, ticketID, issue.Status, store.IssueUpdate{Status: &next})
	if err != nil {
		return nil, transitionErr(err, ticketID)
	}

	s.deps.recordChange(ctx, caller, models.ActionAssignIssue, issue.Status, updated,
		fmt.Sprintf("Assigned %s in zone %s", ticketID, updated.Zone))
	return updated, nil
}

// Reassign routes an issue to another zone and restarts it at Pending,
// whatever state it was in.
func (s *IssueService) Reassign(ctx context.Context, caller models.Identity, ticketID, zone string) (*models.Issue, error) {
	if caller.IsAnonymous() {
		return nil, apperr.Unauthorized("authentication required")
	}
	if !caller.HasRole(models.RoleAdmin) {
		return nil, apperr.Forbidden("only admins can reassign zones")
	}
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return nil, apperr.Validation("zone", "zone is required")
	}

	for attempt := 0; attempt < maxReassignAttempts; attempt++ {
		issue, err := loadIssue(ctx, s.deps.Issues, ticketID)
		if err != nil {
			return nil, err
		}

		pending := models.Pending
		updated, err := s.deps.Issues.Update(ctx, ticketID, issue.Status, store.IssueUpdate{
			Status: &pending,
			Zone:   &zone,
		})
		if errors.Is(err, store.ErrStateChanged) {
			continue
		}
		if err != nil {
			return nil, transitionErr(err, ticketID)
		}

		s.deps.recordChange(ctx, caller, models.ActionReassignZone, issue.Status, updated,
			fmt.Sprintf("Reassigned %s from zone %s to %s", ticketID, issue.Zone, zone))
		return updated, nil
	}
	return nil, apperr.Conflict("issue " + ticketID + " is changing too quickly, please retry")
}

// UpdateStatus is the administrative override. Authorities may set any status
// on issues in their zone; only admins may move zones. Two guards still hold:
// Awaiting Verification needs a resolution image, and Closed is reached only
// through reporter verification.
func (s *IssueService) UpdateStatus(ctx context.Context, caller models.Identity, ticketID string, change StatusChange) (*models.Issue, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	if change.Status == nil && change.Zone == nil {
		return nil, apperr.Validation("status", "status or zone is required")
	}

	var update store.IssueUpdate
	if change.Status != nil {
		st, ok := models.ParseIssueStatus(*change.Status)
		if !ok {
			return nil, apperr.Validation("status", fmt.Sprintf("unknown status %q", *change.Status))
		}
		if st == models.Closed {
			return nil, apperr.Forbidden("issues are closed only by reporter verification")
		}
		update.Status = &st
	}
	if change.Zone != nil {
		if !caller.HasRole(models.RoleAdmin) {
			return nil, apperr.Forbidden("only admins can change an issue's zone")
		}
		zone := strings.TrimSpace(*change.Zone)
		if zone == "" {
			return nil, apperr.Validation("zone", "zone must not be blank")
		}
		update.Zone = &zone
	}

	issue, err := loadIssue(ctx, s.deps.Issues, ticketID)
	if err != nil {
		return nil, err
	}
	if !caller.CanWorkZone(issue.Zone) {
		return nil, apperr.Forbidden("issue belongs to another zone")
	}
	if update.Status != nil && *update.Status == models.AwaitingVerification && issue.ResolutionImageRef == "" {
		return nil, apperr.Validation("resolutionImage", "a resolution image is required before awaiting verification")
	}

	updated, err := s.deps.Issues.Update(ctx, ticketID, issue.Status, update)
	switch {
	case errors.Is(err, store.ErrStateChanged):
		return nil, apperr.Conflict("issue " + ticketID + " was changed by someone else, reload and retry")
	case err != nil:
		return nil, transitionErr(err, ticketID)
	}

	if update.Status != nil && *update.Status != issue.Status {
		s.deps.recordChange(ctx, caller, models.ActionUpdateStatus, issue.Status, updated,
			fmt.Sprintf("Changed status of %s from %s to %s", ticketID, issue.Status, updated.Status))
	}
	if update.Zone != nil && *update.Zone != issue.Zone {
		s.deps.recordChange(ctx, caller, models.ActionReassignZone, updated.Status, updated,
			fmt.Sprintf("Moved %s from zone %s to %s", ticketID, issue.Zone, updated.Zone))
	}
	return updated, nil
}

func workScope(caller models.Identity) (store.IssueFilter, error) {
	if err := requireStaff(caller); err != nil {
		return store.IssueFilter{}, err
	}
	if caller.HasRole(models.RoleAdmin) {
		return store.IssueFilter{}, nil
	}
	if caller.Zone == "" {
		return store.IssueFilter{}, apperr.Forbidden("no zone is assigned to this account")
	}
	return store.IssueFilter{Zone: caller.Zone}, nil
}
