package middleware

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/video-share-api/internal/apperr"
	"github.com/iliyamo/video-share-api/internal/model"
	"github.com/iliyamo/video-share-api/internal/repository"
)

// RequireRole enforces that the role claimed by the access token is one of
// roles.  It trusts the token and must run after JWTAuth.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[Role(c)] {
				return apperr.Forbidden("Access denied.")
			}
			return next(c)
		}
	}
}

// UserLoader reloads the stored record of a user.
type UserLoader interface {
	Authoritative(ctx context.Context, id string) (model.User, error)
}

// RequireAdmin authorizes a request only when both the token claim and the
// stored record say admin, so a demoted user holding an older token is
// refused.  A missing record is refused as well; a store failure is an
// internal error and never lets the request through.
func RequireAdmin(users UserLoader, log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := UserID(c)
			if id == "" || Role(c) != model.RoleAdmin {
				return apperr.Forbidden("Admin access required.")
			}
			u, err := users.Authoritative(c.Request().Context(), id)
			if errors.Is(err, repository.ErrUserNotFound) {
				return apperr.Forbidden("Admin access required.")
			}
			if err != nil {
				return apperr.Internal(err)
			}
			if !u.IsAdmin() {
				log.Warn("admin claim does not match stored role", zap.String("user_id", id), zap.String("stored_role", string(u.Role)))
				return apperr.Forbidden("Admin access required.")
			}
			return next(c)
		}
	}
}
