package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin     = "admin"
	RolePhysician = "physician"
	RoleDataClerk = "data-clerk"
)

// RequireRole allows the request when the user holds one of roles. Admins pass
// every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasAnyRole(RolesFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

func HasAnyRole(held []string, roles ...string) bool {
	for _, has := range held {
		if has == RoleAdmin {
			return true
		}
		for _, required := range roles {
			if has == required {
				return true
			}
		}
	}
	return false
}
