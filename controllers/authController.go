package controllers

import (
	"net/http"

	"spotsort-be/middlewares"
	"spotsort-be/models"
	"spotsort-be/services"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	auth *services.AuthService
}

func NewAuthController(auth *services.AuthService) *AuthController {
	return &AuthController{auth: auth}
}

// RequestOtp starts a citizen signup and mails the verification code.
func (ac *AuthController) RequestOtp(c *gin.Context) {
	var input services.SignupRequest
	if !bindJSON(c, &input) {
		return
	}

	if err := ac.auth.RequestSignupOtp(c.Request.Context(), input); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP sent to your email"})
}

func (ac *AuthController) VerifyOtp(c *gin.Context) {
	var input struct {
		Email string `json:"email"`
		Otp   string `json:"otp"`
	}
	if !bindJSON(c, &input) {
		return
	}

	session, err := ac.auth.VerifySignupOtp(c.Request.Context(), input.Email, input.Otp)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (ac *AuthController) Login(c *gin.Context) {
	var input struct {
		Email    string      `json:"email"`
		Password string      `json:"password"`
		Role     models.Role `json:"role"`
	}
	if !bindJSON(c, &input) {
		return
	}

	session, err := ac.auth.Login(c.Request.Context(), input.Email, input.Password, input.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (ac *AuthController) GetMe(c *gin.Context) {
	user, err := ac.auth.Me(c.Request.Context(), middlewares.CurrentIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// CreateUser lets an admin provision authority and admin accounts.
func (ac *AuthController) CreateUser(c *gin.Context) {
	var input services.NewUser
	if !bindJSON(c, &input) {
		return
	}

	user, err := ac.auth.CreateUser(c.Request.Context(), middlewares.CurrentIdentity(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}
