package routes

import (
	"spotsort-be/controllers"
	"spotsort-be/middlewares"
	"spotsort-be/models"

	"github.com/gin-gonic/gin"
)

// IssueRoutes sets up the issue routes
func IssueRoutes(r *gin.Engine, ic *controllers.IssueController, auth, otpLimiter gin.HandlerFunc) {
	staff := middlewares.RequireRoles(models.RoleAuthority, models.RoleAdmin)
	citizen := middlewares.RequireRoles(models.RoleCitizen)

	issue := r.Group("/api/issues")
	{
		// public
		issue.GET("/track/:ticketId", ic.TrackIssue)
		issue.PUT("/:ticketId/verify", ic.VerifyResolution)
		issue.POST("/otp-send", otpLimiter, ic.SendReportOtp)
		issue.POST("/anonymous", otpLimiter, ic.CreateAnonymousIssue)

		issue.POST("", auth, citizen, ic.CreateIssue)
		issue.GET("/my-reports", auth, citizen, ic.MyReports)
		issue.PUT("/:ticketId/citizen-close", auth, citizen, ic.CitizenClose)

		issue.GET("/authority/dashboard", auth, staff, ic.Dashboard)
		issue.GET("/stats", auth, staff, ic.Stats)
		issue.PUT("/:ticketId/assign", auth, staff, ic.AssignIssue)
		issue.PUT("/:ticketId/resolve", auth, staff, ic.ResolveIssue)
		issue.PUT("/:ticketId/status", auth, staff, ic.UpdateStatus)
		issue.PUT("/:ticketId/reassign", auth, middlewares.RequireRoles(models.RoleAdmin), ic.ReassignIssue)
	}
}
