package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/pkg/logctx"
	"github.com/fatflowers/aspy/pkg/response"
)

const UserKey = "user"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// AuthMiddleware requires a bearer token and stores the user under UserKey.
// isInactive classifies authenticator errors that should answer 403.
func AuthMiddleware(auth Authenticator, isInactive func(error) bool, base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			abort(c, response.APIResponseCodeUnauthorized, "Not authenticated")
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if isInactive != nil && isInactive(err) {
				abort(c, response.APIResponseCodeForbidden, "Inactive user")
				return
			}
			logctx.FromGin(c, base).Debugw("authentication failed", "error", err.Error())
			abort(c, response.APIResponseCodeUnauthorized, "Could not validate credentials")
			return
		}

		c.Set(UserKey, user)
		c.Request = c.Request.WithContext(logctx.WithUserID(c.Request.Context(), user.ID))
		setLogger(c, logctx.FromGin(c, base).With("user_id", user.ID))
		c.Next()
	}
}

// AdminMiddleware must run after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentUser(c).IsAdmin() {
			abort(c, response.APIResponseCodeForbidden, "The user doesn't have enough privileges")
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil on public routes.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

func abort(c *gin.Context, code response.APIResponseCode, msg string) {
	c.AbortWithStatusJSON(code.HTTPStatus(), response.ErrorMsg(code, msg))
}
