package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"spotsort-be/apperr"
	"spotsort-be/models"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// IdentityResolver turns a bearer token into a caller identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, bearer string) (models.Identity, error)
}

// AuthMiddleware rejects requests without a valid bearer token and stores
// the resolved identity on the context.
func AuthMiddleware(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.Request.Header.Get("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization token provided"})
			return
		}

		// "Bearer <token>" or the bare token
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		id, err := resolver.Resolve(c.Request.Context(), tokenString)
		if err != nil {
			c.AbortWithStatusJSON(apperr.Status(err), gin.H{"error": message(err)})
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireRoles must run after AuthMiddleware.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentIdentity(c).HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You are not allowed to perform this action"})
			return
		}
		c.Next()
	}
}

// CurrentIdentity returns the caller set by AuthMiddleware, or the anonymous
// identity on unauthenticated routes.
func CurrentIdentity(c *gin.Context) models.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}
	}
	id, _ := v.(models.Identity)
	return id
}

func message(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) && e.Kind != apperr.KindInternal {
		return e.Message
	}
	return "internal server error"
}
