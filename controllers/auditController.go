package controllers

import (
	"net/http"
	"strconv"

	"spotsort-be/apperr"
	"spotsort-be/middlewares"
	"spotsort-be/services"

	"github.com/gin-gonic/gin"
)

type AuditController struct {
	audit *services.AuditRecorder
}

func NewAuditController(audit *services.AuditRecorder) *AuditController {
	return &AuditController{audit: audit}
}

// GetLogs returns the newest audit entries; ?limit= caps the count.
func (ac *AuditController) GetLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, apperr.Validation("limit", "limit must be a positive number"))
			return
		}
		limit = n
	}

	entries, err := ac.audit.List(c.Request.Context(), middlewares.CurrentIdentity(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
