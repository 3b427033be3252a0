package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Auth resolves the buyer identity set by the session layer in front of this
// service. Session issuance itself lives outside the settlement engine.
func Auth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := c.Request().Header.Get("X-User-Id")
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
			}
			c.Set("user_id", userID)
			return next(c)
		}
	}
}

// UserID reads the authenticated buyer id from the request context.
func UserID(c echo.Context) string {
	userID, _ := c.Get("user_id").(string)
	return userID
}

// RequireOperator guards refund endpoints. Operator credential provisioning
// is configuration, not business logic.
func RequireOperator(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" || c.Request().Header.Get("X-Operator-Token") != token {
				return echo.NewHTTPError(http.StatusForbidden, "operator access required")
			}
			return next(c)
		}
	}
}
