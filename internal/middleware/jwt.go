package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/video-share-api/internal/apperr"
	"github.com/iliyamo/video-share-api/internal/utils"
)

// AccessCookie is the cookie that carries the access token.
const AccessCookie = "accessToken"

// accessToken returns the raw token from the accessToken cookie, falling back
// to an Authorization: Bearer header.
func accessToken(r *http.Request) string {
	if ck, err := r.Cookie(AccessCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	auth := r.Header.Get(echo.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// JWTAuth validates the access token and stores its claims in the context
// under "claims", "user_id" and "role".  A missing token is rejected with
// 401; a present but invalid or expired one with 403, without telling the
// two failures apart.  The store is never consulted here.
func JWTAuth(tokens *utils.TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := accessToken(c.Request())
			if raw == "" {
				return apperr.Unauthenticated("Unauthenticated request.")
			}
			claims, err := tokens.VerifyAccess(raw)
			if err != nil {
				return apperr.Forbidden(apperr.MsgInvalidToken)
			}
			c.Set(ctxClaims, claims)
			c.Set(ctxUserID, claims.UserID)
			c.Set(ctxRole, string(claims.Role))
			return next(c)
		}
	}
}
