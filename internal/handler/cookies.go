package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/video-share-api/internal/middleware"
	"github.com/iliyamo/video-share-api/internal/utils"
)

// RefreshCookie carries the refresh token; it is scoped to the users routes.
const RefreshCookie = "refreshToken"

// CookiePolicy decides the attributes of the session cookies.
type CookiePolicy struct {
	ForceSecure bool   // set Secure even when the request looks like plain HTTP
	RefreshPath string // path of the refresh cookie, e.g. /api/v1/users
}

func (p CookiePolicy) secure(c echo.Context) bool {
	return p.ForceSecure || c.IsTLS() || c.Scheme() == "https"
}

func (p CookiePolicy) cookie(c echo.Context, name, value, path string, maxAge int, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   maxAge,
		Expires:  exp,
		HttpOnly: true,
		Secure:   p.secure(c),
		SameSite: http.SameSiteLaxMode,
	}
}

// setSession writes both session cookies.
func (p CookiePolicy) setSession(c echo.Context, access, refresh utils.Token) {
	now := time.Now()
	c.SetCookie(p.cookie(c, middleware.AccessCookie, access.Token, "/",
		int(access.Exp.Sub(now).Seconds()), access.Exp))
	c.SetCookie(p.cookie(c, RefreshCookie, refresh.Token, p.RefreshPath,
		int(refresh.Exp.Sub(now).Seconds()), refresh.Exp))
}

// clearSession expires both session cookies.
func (p CookiePolicy) clearSession(c echo.Context) {
	c.SetCookie(p.cookie(c, middleware.AccessCookie, "", "/", -1, time.Unix(0, 0)))
	c.SetCookie(p.cookie(c, RefreshCookie, "", p.RefreshPath, -1, time.Unix(0, 0)))
}
