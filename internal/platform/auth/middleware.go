package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey switches validation to HS256 and is meant for tests.
	SigningKey []byte
	Skipper    func(echo.Context) bool
}

const jwksCacheTTL = 5 * time.Minute

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	var keyfunc jwt.Keyfunc
	if len(cfg.SigningKey) > 0 {
		keyfunc = func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
	} else {
		url := cfg.JWKSURL
		if url == "" && cfg.Issuer != "" {
			if discovered, err := DiscoverJWKSURL(cfg.Issuer); err == nil {
				url = discovered
			}
		}
		keyfunc = NewJWKSCache(url, jwksCacheTTL).Keyfunc
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			scheme, tokenStr, ok := strings.Cut(c.Request().Header.Get("Authorization"), " ")
			if scheme == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenStr) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenStr), claims, keyfunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			setUser(c, claims.Subject, claims.Roles)
			return next(c)
		}
	}
}

// DevAuthMiddleware authenticates every request as dev-user with the admin
// role.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			setUser(c, "dev-user", []string{RoleAdmin})
			return next(c)
		}
	}
}

func setUser(c echo.Context, userID string, roles []string) {
	c.Set("user_id", userID)
	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UserRolesKey, roles)
	c.SetRequest(c.Request().WithContext(ctx))
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
