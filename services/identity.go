package services

import (
	"context"
	"errors"

	"spotsort-be/apperr"
	"spotsort-be/models"
	"spotsort-be/store"
	"spotsort-be/utils"
)

// IdentityResolver turns a bearer token into the caller's identity. Role and
// zone come from the stored user, not from token claims.
type IdentityResolver struct {
	tokens *utils.TokenIssuer
	users  store.UserStore
}

func NewIdentityResolver(tokens *utils.TokenIssuer, users store.UserStore) *IdentityResolver {
	return &IdentityResolver{tokens: tokens, users: users}
}

func (r *IdentityResolver) Resolve(ctx context.Context, bearer string) (models.Identity, error) {
	userID, err := r.tokens.ParseToken(bearer)
	if err != nil {
		return models.Identity{}, apperr.Unauthorized("invalid authorization token")
	}

	user, err := r.users.FindByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Identity{}, apperr.Unauthorized("user no longer exists")
	}
	if err != nil {
		return models.Identity{}, apperr.Internal("load user", err)
	}
	if !user.Verified {
		return models.Identity{}, apperr.Unauthorized("email not verified")
	}
	return user.Identity(), nil
}
