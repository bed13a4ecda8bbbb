package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"spotsort-be/apperr"
	"spotsort-be/models"
	"spotsort-be/notify"
	"spotsort-be/otp"
	"spotsort-be/store"
	"spotsort-be/utils"
)

type SignupRequest struct {
	Name         string `json:"name" validate:"required,max=50"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=6,max=72"`
	MobileNumber string `json:"mobileNumber" validate:"required,max=20"`
}

// NewUser describes a staff or citizen account created by an operator.
type NewUser struct {
	Name         string      `json:"name" validate:"required,max=50"`
	Email        string      `json:"email" validate:"required,email"`
	Password     string      `json:"password" validate:"required,min=6,max=72"`
	MobileNumber string      `json:"mobileNumber" validate:"max=20"`
	Role         models.Role `json:"role" validate:"required,oneof=citizen authority admin"`
	Zone         string      `json:"zone" validate:"max=100"`
}

type Session struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// AuthService handles citizen signup with an emailed code, login and
// operator-created accounts.
type AuthService struct {
	deps   Deps
	tokens *utils.TokenIssuer
}

func NewAuthService(deps Deps, tokens *utils.TokenIssuer) *AuthService {
	return &AuthService{deps: deps.withDefaults(), tokens: tokens}
}

// RequestSignupOtp creates an unverified citizen, or restarts an earlier
// unfinished signup for the same email, and mails a verification code.
func (s *AuthService) RequestSignupOtp(ctx context.Context, req SignupRequest) error {
	if err := validateInput(req); err != nil {
		return err
	}
	email := models.EmailKey(req.Email)

	existing, err := s.deps.Users.FindByEmail(ctx, email)
	switch {
	case err == nil && existing.Verified:
		return apperr.Conflict("an account with this email already exists")
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return apperr.Internal("look up user", err)
	}
	if err := s.deps.Users.DeleteUnverified(ctx, email); err != nil {
		return apperr.Internal("reset unverified user", err)
	}

	now := s.deps.Clock().UTC()
	user := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		Password:     req.Password,
		MobileNumber: req.MobileNumber,
		Role:         models.RoleCitizen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.HashPassword(); err != nil {
		return apperr.Internal("hash password", err)
	}
	if err := s.deps.Users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return apperr.Conflict("an account with this email already exists")
		}
		return apperr.Internal("create user", err)
	}

	ttl := s.deps.Settings.SignupOtpTTL
	code, err := s.deps.Challenge.Issue(ctx, otp.PurposeSignup, email, ttl)
	if err != nil {
		return apperr.Internal("issue verification code", err)
	}

	msg, err := notify.SignupCode(email, code, int(ttl/time.Minute))
	if err == nil {
		err = s.deps.Notifier.Deliver(ctx, msg)
	}
	if err != nil {
		return apperr.Upstream("could not send verification code", err)
	}
	return nil
}

// VerifySignupOtp marks the account verified and signs the user in.
func (s *AuthService) VerifySignupOtp(ctx context.Context, email, code string) (*Session, error) {
	email = models.EmailKey(email)
	if email == "" {
		return nil, apperr.Validation("email", "email is required")
	}
	if code == "" {
		return nil, apperr.InvalidCode("invalid or expired verification code")
	}

	ok, err := s.deps.Challenge.Verify(ctx, otp.PurposeSignup, email, code)
	if err != nil {
		return nil, apperr.Internal("verify code", err)
	}
	s.deps.Metrics.OtpChecked(string(otp.PurposeSignup), ok)
	if !ok {
		return nil, apperr.InvalidCode("invalid or expired verification code")
	}

	user, err := s.deps.Users.FindByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("no signup in progress for this email")
	}
	if err != nil {
		return nil, apperr.Internal("load user", err)
	}
	if err := s.deps.Users.MarkVerified(ctx, user.ID.Hex()); err != nil {
		return nil, apperr.Internal("verify user", err)
	}
	user.Verified = true

	return s.session(user)
}

// Login checks credentials. A non-empty role must match the account's role.
func (s *AuthService) Login(ctx context.Context, email, password string, role models.Role) (*Session, error) {
	email = models.EmailKey(email)
	if email == "" {
		return nil, apperr.Validation("email", "email is required")
	}
	if password == "" {
		return nil, apperr.Validation("password", "password is required")
	}

	user, err := s.deps.Users.FindByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unauthorized("invalid email or password")
	}
	if err != nil {
		return nil, apperr.Internal("load user", err)
	}
	if !user.ComparePassword(password) {
		return nil, apperr.Unauthorized("invalid email or password")
	}
	if role != "" && user.Role != role {
		return nil, apperr.Unauthorized(fmt.Sprintf("this account cannot sign in as %s", role))
	}
	if !user.Verified {
		return nil, apperr.Unauthorized("email not verified")
	}

	return s.session(user)
}

// Me returns the stored profile of the caller.
func (s *AuthService) Me(ctx context.Context, caller models.Identity) (*models.User, error) {
	if caller.IsAnonymous() {
		return nil, apperr.Unauthorized("authentication required")
	}
	user, err := s.deps.Users.FindByID(ctx, caller.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("load user", err)
	}
	return user, nil
}

// CreateUser provisions a verified account directly, bypassing the emailed
// code. Authorities must carry a zone.
func (s *AuthService) CreateUser(ctx context.Context, actor models.Identity, req NewUser) (*models.User, error) {
	if !actor.IsAnonymous() && !actor.HasRole(models.RoleAdmin) {
		return nil, apperr.Forbidden("only admins can create accounts")
	}
	if err := validateInput(req); err != nil {
		return nil, err
	}
	zone := strings.TrimSpace(req.Zone)
	if req.Role == models.RoleAuthority && zone == "" {
		return nil, apperr.Validation("zone", "zone is required for authority accounts")
	}

	now := s.deps.Clock().UTC()
	user := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        models.EmailKey(req.Email),
		Password:     req.Password,
		MobileNumber: req.MobileNumber,
		Role:         req.Role,
		Zone:         zone,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.HashPassword(); err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	if err := s.deps.Users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflict("an account with this email already exists")
		}
		return nil, apperr.Internal("create user", err)
	}

	s.deps.Audit.Record(ctx, actor, models.ActionCreateUser,
		fmt.Sprintf("Created %s account %s", user.Role, user.Email), user.ID.Hex())
	return user, nil
}

func (s *AuthService) session(user *models.User) (*Session, error) {
	token, err := s.tokens.GenerateToken(user.Identity())
	if err != nil {
		return nil, apperr.Internal("sign token", err)
	}
	return &Session{Token: token, User: user}, nil
}
