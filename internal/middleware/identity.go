package middleware

import (
	"database/sql"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/trustteams/trustteams-api/internal/models"
	"github.com/trustteams/trustteams-api/internal/repository"
	appErrors "github.com/trustteams/trustteams-api/pkg/errors"
	"github.com/trustteams/trustteams-api/pkg/response"
)

// ContextUserKey is the gin context key holding the resolved principal.
const ContextUserKey = "auth_user"

// HeaderUserID carries the caller's identity, verified upstream of this
// service.
const HeaderUserID = "X-User-ID"

// Identity resolves the X-User-ID header against the users table and stores
// the principal on the request context. Requests without the header are
// rejected.
func Identity(users *repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing caller identity"))
			c.Abort()
			return
		}

		user, err := users.FindByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "unknown caller identity"))
			} else {
				response.Error(c, appErrors.Clone(appErrors.ErrInternal, "failed to resolve caller"))
			}
			c.Abort()
			return
		}

		if !user.Active {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "account is deactivated"))
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// RequireRoles allows only the listed roles past. The stored icm role counts
// as manager.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		user := value.(*models.User)

		if _, ok := allowed[user.Role]; ok {
			c.Next()
			return
		}
		if _, ok := allowed[models.RoleManager]; ok && user.Role.ManagerEquivalent() {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
