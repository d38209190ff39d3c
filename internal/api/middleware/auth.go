package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/identitylabs/identity-system/internal/core/domain"
	"github.com/identitylabs/identity-system/internal/core/ports"
)

// CurrentUserKey is the echo context key the resolved user is stored under.
const CurrentUserKey = "current_user"

// Auth extracts the bearer token, resolves it to an active user through the
// auth service, and injects the public user view into the request context.
// Any token problem yields 401; a valid token for a disabled account yields
// 403, since the caller did authenticate.
func Auth(auth ports.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c)
			if err != nil {
				return err
			}

			user, err := auth.CurrentUser(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrInactiveAccount) {
					return echo.NewHTTPError(http.StatusForbidden, "inactive account")
				}
				if errors.Is(err, domain.ErrRepositoryUnavailable) {
					return err
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "could not validate credentials")
			}

			c.Set(CurrentUserKey, user)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}
	return parts[1], nil
}

// CurrentUser retrieves the user injected by Auth. The second return is
// false when the middleware did not run for this route.
func CurrentUser(c echo.Context) (*domain.PublicUser, bool) {
	user, ok := c.Get(CurrentUserKey).(*domain.PublicUser)
	return user, ok
}
