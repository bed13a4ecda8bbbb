package routes

import (
	"spotsort-be/controllers"
	"spotsort-be/middlewares"
	"spotsort-be/models"

	"github.com/gin-gonic/gin"
)

func AuditRoutes(r *gin.Engine, ac *controllers.AuditController, auth gin.HandlerFunc) {
	r.GET("/api/audit/logs", auth, middlewares.RequireRoles(models.RoleAdmin), ac.GetLogs)
}
