package middleware

// identity.go holds the context keys written by JWTAuth and the helpers that
// read them back.  Handlers and the other middleware go through these
// helpers instead of asserting on c.Get values themselves.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/video-share-api/internal/model"
	"github.com/iliyamo/video-share-api/internal/utils"
)

const (
	ctxClaims = "claims"
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// Claims returns the verified access claims, or nil on public routes.
func Claims(c echo.Context) *utils.AccessClaims {
	cl, _ := c.Get(ctxClaims).(*utils.AccessClaims)
	return cl
}

// UserID returns the authenticated user id or "".
func UserID(c echo.Context) string {
	id, _ := c.Get(ctxUserID).(string)
	return id
}

// Role returns the role claimed by the access token or "".
func Role(c echo.Context) model.Role {
	r, _ := c.Get(ctxRole).(string)
	return model.Role(r)
}

// currentUserID is UserID with a placeholder for anonymous callers, used to
// build limiter keys.
func currentUserID(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
