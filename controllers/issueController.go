package controllers

import (
	"net/http"
	"strings"

	"spotsort-be/apperr"
	"spotsort-be/middlewares"
	"spotsort-be/models"
	"spotsort-be/services"

	"github.com/gin-gonic/gin"
)

type IssueController struct {
	submissions *services.SubmissionService
	issues      *services.IssueService
	resolutions *services.ResolutionService
}

func NewIssueController(submissions *services.SubmissionService, issues *services.IssueService, resolutions *services.ResolutionService) *IssueController {
	return &IssueController{submissions: submissions, issues: issues, resolutions: resolutions}
}

// CreateIssue handles a report from a signed-in citizen.
func (ic *IssueController) CreateIssue(c *gin.Context) {
	img, closer, err := formImage(c, "issueImage")
	if err != nil {
		respondError(c, err)
		return
	}
	defer closer.Close()
	if !img.Present() {
		respondError(c, apperr.Validation("issueImage", "issueImage is required"))
		return
	}

	details, err := detailsFromForm(c)
	if err != nil {
		respondError(c, err)
		return
	}

	issue, err := ic.submissions.SubmitDirect(c.Request.Context(), middlewares.CurrentIdentity(c), details, img)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ticketId": issue.TicketID})
}

type anonymousReportInput struct {
	ReporterName   string   `json:"reporterName"`
	ReporterEmail  string   `json:"reporterEmail"`
	ReporterMobile string   `json:"reporterMobile"`
	Title          string   `json:"title"`
	IssueType      string   `json:"issueType"`
	Description    string   `json:"description"`
	Lat            *float64 `json:"lat"`
	Lng            *float64 `json:"lng"`
	Zone           string   `json:"zone"`
}

// SendReportOtp stages an anonymous report and mails the reporter a code.
func (ic *IssueController) SendReportOtp(c *gin.Context) {
	var input anonymousReportInput
	if !bindJSON(c, &input) {
		return
	}
	if input.Lat == nil {
		respondError(c, apperr.Validation("location.lat", "location.lat is required"))
		return
	}
	if input.Lng == nil {
		respondError(c, apperr.Validation("location.lng", "location.lng is required"))
		return
	}

	contact := models.AnonymousReporter{
		Name:   strings.TrimSpace(input.ReporterName),
		Email:  strings.TrimSpace(input.ReporterEmail),
		Mobile: strings.TrimSpace(input.ReporterMobile),
	}
	details := models.IssueDetails{
		Title:       strings.TrimSpace(input.Title),
		IssueType:   models.IssueType(strings.TrimSpace(input.IssueType)),
		Description: strings.TrimSpace(input.Description),
		Location:    models.Location{Lat: *input.Lat, Lng: *input.Lng},
		Zone:        strings.TrimSpace(input.Zone),
	}

	token, err := ic.submissions.BeginAnonymous(c.Request.Context(), contact, details)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":      "OTP sent to your email",
		"sessionToken": token,
	})
}

// CreateAnonymousIssue completes a staged report with the emailed code and the photo.
func (ic *IssueController) CreateAnonymousIssue(c *gin.Context) {
	img, closer, err := formImage(c, "issueImage")
	if err != nil {
		respondError(c, err)
		return
	}
	defer closer.Close()

	ticketID, err := ic.submissions.CompleteAnonymous(c.Request.Context(),
		strings.TrimSpace(c.PostForm("sessionToken")), strings.TrimSpace(c.PostForm("code")), img)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ticketId": ticketID})
}

func (ic *IssueController) MyReports(c *gin.Context) {
	list, err := ic.issues.ListForCitizen(c.Request.Context(), middlewares.CurrentIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Dashboard lists the caller's zone, or every issue for admins.
func (ic *IssueController) Dashboard(c *gin.Context) {
	list, err := ic.issues.ListForWork(c.Request.Context(), middlewares.CurrentIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (ic *IssueController) Stats(c *gin.Context) {
	stats, err := ic.issues.Stats(c.Request.Context(), middlewares.CurrentIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// TrackIssue is public and never exposes reporter contact details.
func (ic *IssueController) TrackIssue(c *gin.Context) {
	tracked, err := ic.issues.Track(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tracked)
}

func (ic *IssueController) AssignIssue(c *gin.Context) {
	issue, err := ic.issues.Assign(c.Request.Context(), middlewares.CurrentIdentity(c), c.Param("ticketId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

func (ic *IssueController) ResolveIssue(c *gin.Context) {
	img, closer, err := formImage(c, "resolutionImage")
	if err != nil {
		respondError(c, err)
		return
	}
	defer closer.Close()

	issue, err := ic.resolutions.Resolve(c.Request.Context(), middlewares.CurrentIdentity(c), c.Param("ticketId"), img)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

// VerifyResolution closes an issue for a reporter who proves the report email.
func (ic *IssueController) VerifyResolution(c *gin.Context) {
	var input struct {
		Email string `json:"email"`
	}
	if !bindJSON(c, &input) {
		return
	}

	issue, err := ic.resolutions.VerifyByEmail(c.Request.Context(), c.Param("ticketId"), input.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Thank you for verifying. The issue is now closed.",
		"issue":   issue.Public(),
	})
}

func (ic *IssueController) CitizenClose(c *gin.Context) {
	issue, err := ic.resolutions.VerifyByIdentity(c.Request.Context(), middlewares.CurrentIdentity(c), c.Param("ticketId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

func (ic *IssueController) ReassignIssue(c *gin.Context) {
	var input struct {
		Zone string `json:"zone"`
	}
	if !bindJSON(c, &input) {
		return
	}

	issue, err := ic.issues.Reassign(c.Request.Context(), middlewares.CurrentIdentity(c), c.Param("ticketId"), input.Zone)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

func (ic *IssueController) UpdateStatus(c *gin.Context) {
	var change services.StatusChange
	if !bindJSON(c, &change) {
		return
	}

	issue, err := ic.issues.UpdateStatus(c.Request.Context(), middlewares.CurrentIdentity(c), c.Param("ticketId"), change)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}
