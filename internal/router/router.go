// Package router assembles the echo instance: global middleware, the error
// handler and every route of the API.
package router

import (
	"strconv"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/video-share-api/internal/handler"
	"github.com/iliyamo/video-share-api/internal/middleware"
	"github.com/iliyamo/video-share-api/internal/model"
	"github.com/iliyamo/video-share-api/internal/utils"
)

// BasePath is the mount point of the versioned API.
const BasePath = "/api/v1"

// Deps carries everything the routes need.  Nil limiters and a nil cache
// disable those layers.
type Deps struct {
	Users      *handler.UserHandler
	Admin      *handler.AdminHandler
	Upload     *handler.UploadHandler
	Tokens     *utils.TokenService
	Loader     middleware.UserLoader
	Cache      *middleware.ResponseCache
	APILimit   echo.MiddlewareFunc
	AuthLimit  echo.MiddlewareFunc
	DB         handler.Pinger
	Log        *zap.Logger
	Production bool
	CORSOrigin string
	MaxUpload  int64 // bytes accepted on multipart routes
}

func orPass(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	if mw == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return mw
}

// New builds the echo instance with global middleware and all routes.
func New(d Deps) *echo.Echo {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(d.Production, d.Log)

	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(echomw.Recover())
	e.Use(echomw.Secure())
	// without an origin only same-origin clients are served
	if d.CORSOrigin != "" && d.CORSOrigin != "*" {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     []string{d.CORSOrigin},
			AllowCredentials: true,
		}))
	}

	e.GET("/healthz", handler.Health(d.DB))
	Register(e, d)
	return e
}

// Register mounts the API routes under BasePath.
func Register(e *echo.Echo, d Deps) {
	auth := middleware.JWTAuth(d.Tokens)
	member := middleware.RequireRole(model.RoleUser, model.RoleAdmin)
	authLimit := orPass(d.AuthLimit)
	bodyLimit := orPass(nil)
	if d.MaxUpload > 0 {
		bodyLimit = echomw.BodyLimit(strconv.FormatInt(d.MaxUpload, 10) + "B")
	}

	api := e.Group(BasePath, orPass(d.APILimit))

	u := d.Users
	users := api.Group("/users")
	users.POST("/signup", u.Signup, authLimit, bodyLimit)
	users.POST("/login", u.Login, authLimit)
	users.POST("/refresh-token", u.Refresh, authLimit)
	users.POST("/logout", u.Logout, auth, member)
	users.GET("/current", u.Current, auth, member)
	users.PATCH("/passwordChange", u.ChangePassword, auth, member)
	users.PUT("/avatar", u.ChangeAvatar, auth, member, bodyLimit)
	users.PUT("/coverImage", u.ChangeCoverImage, auth, member, bodyLimit)
	users.PUT("/update", u.Update, auth, member)
	users.GET("/:id", u.GetByID, d.Cache.Middleware())
	users.DELETE("/:id", u.Delete, auth, member)

	admin := api.Group("/admin", auth, middleware.RequireAdmin(d.Loader, d.Log))
	admin.GET("/users", d.Admin.ListUsers)

	api.POST("/img/upload", d.Upload.Upload, bodyLimit)
}
