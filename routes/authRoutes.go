package routes

import (
	"spotsort-be/controllers"
	"spotsort-be/middlewares"
	"spotsort-be/models"

	"github.com/gin-gonic/gin"
)

// AuthRoutes sets up the authentication routes
func AuthRoutes(r *gin.Engine, ac *controllers.AuthController, auth, otpLimiter gin.HandlerFunc) {
	group := r.Group("/api/auth")
	{
		group.POST("/request-otp", otpLimiter, ac.RequestOtp)
		group.POST("/verify-otp", otpLimiter, ac.VerifyOtp)
		group.POST("/login", ac.Login)
		group.GET("/me", auth, ac.GetMe)
		group.POST("/users", auth, middlewares.RequireRoles(models.RoleAdmin), ac.CreateUser)
	}
}
