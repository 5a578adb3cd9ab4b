package auth

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// contextKey namespaces values this middleware stashes in Echo's
// per-request context.
type contextKey string

const userIDKey contextKey = "authenticated_user_id"

// Middleware builds an Echo middleware that resolves the request's
// UserID via res and stores it in context for downstream handlers,
// returning 401 on failure. This is the HTTP-boundary wiring around
// Resolver.ResolveUser; the core itself never sees an http.Request.
func Middleware(res *Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := res.ResolveUser(c.Request())
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]any{
					"error": "authentication failed: " + err.Error(),
				})
			}
			c.Set(string(userIDKey), userID)
			return next(c)
		}
	}
}

// UserIDFromContext retrieves the UserID Middleware stored on c.
func UserIDFromContext(c echo.Context) (uuid.UUID, bool) {
	userID, ok := c.Get(string(userIDKey)).(uuid.UUID)
	return userID, ok
}
