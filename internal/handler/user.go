package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/video-share-api/internal/apperr"
	"github.com/iliyamo/video-share-api/internal/middleware"
	"github.com/iliyamo/video-share-api/internal/service"
	"github.com/iliyamo/video-share-api/internal/storage"
)

// Purger drops cached responses for request paths.
type Purger interface {
	Purge(ctx context.Context, paths ...string)
}

// UserHandler serves the /users routes.
type UserHandler struct {
	Accounts  *service.Accounts
	Cookies   CookiePolicy
	Cache     Purger
	UploadDir string
	BasePath  string // mount point of the API, used to purge /users/:id
	Log       *zap.Logger
}

func NewUserHandler(acc *service.Accounts, cookies CookiePolicy, cache Purger, uploadDir, basePath string, log *zap.Logger) *UserHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserHandler{Accounts: acc, Cookies: cookies, Cache: cache, UploadDir: uploadDir, BasePath: basePath, Log: log}
}

type sessionResp struct {
	User         any    `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func actor(c echo.Context) service.Actor {
	return service.Actor{ID: middleware.UserID(c), Role: middleware.Role(c), IP: c.RealIP()}
}

func bindErr() error {
	return apperr.Validation([]string{"Invalid request body."})
}

func (h *UserHandler) purge(ctx context.Context, id string) {
	if h.Cache != nil {
		h.Cache.Purge(ctx, h.BasePath+"/users/"+id)
	}
}

func (h *UserHandler) discard(f *storage.StagedFile) {
	if err := f.Remove(); err != nil {
		h.Log.Warn("remove staged upload", zap.String("path", f.Path), zap.Error(err))
	}
}

// stage copies the image in field to the upload dir.  A missing field gives
// (nil, nil); the caller decides whether the file was required.
func stage(c echo.Context, field, label, dir string) (*storage.StagedFile, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Validation([]string{"Invalid multipart form."})
	}
	f, err := storage.StageImage(fh, dir)
	if errors.Is(err, storage.ErrNotImage) {
		return nil, apperr.Validation([]string{label + " must be an image file."})
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return f, nil
}

// Signup handles POST /users/signup (multipart).
func (h *UserHandler) Signup(c echo.Context) error {
	var in service.SignupInput
	if err := c.Bind(&in); err != nil {
		return bindErr()
	}
	avatar, err := stage(c, "avatar", "Avatar", h.UploadDir)
	if err != nil {
		return err
	}
	defer h.discard(avatar)
	cover, err := stage(c, "coverImage", "Cover image", h.UploadDir)
	if err != nil {
		return err
	}
	defer h.discard(cover)

	u, err := h.Accounts.Signup(c.Request().Context(), in, avatar, cover)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "User registered successfully.", u)
}

// Login handles POST /users/login.
func (h *UserHandler) Login(c echo.Context) error {
	var in service.LoginInput
	if err := c.Bind(&in); err != nil {
		return bindErr()
	}
	in.IP = c.RealIP()
	in.UserAgent = c.Request().UserAgent()

	sess, err := h.Accounts.Login(c.Request().Context(), in)
	if err != nil {
		return err
	}
	h.Cookies.setSession(c, sess.Access, sess.Refresh)
	return respond(c, http.StatusOK, "User logged in successfully.", sessionResp{
		User:         sess.User,
		AccessToken:  sess.Access.Token,
		RefreshToken: sess.Refresh.Token,
	})
}

// Logout handles POST /users/logout.
func (h *UserHandler) Logout(c echo.Context) error {
	if err := h.Accounts.Logout(c.Request().Context(), actor(c)); err != nil {
		return err
	}
	h.Cookies.clearSession(c)
	return respond(c, http.StatusOK, "User logged out successfully.", nil)
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken" form:"refreshToken"`
}

// Refresh handles POST /users/refresh-token.  The token comes from the
// refresh cookie, else from the body.
func (h *UserHandler) Refresh(c echo.Context) error {
	var raw string
	if ck, err := c.Cookie(RefreshCookie); err == nil {
		raw = ck.Value
	}
	if raw == "" {
		var req refreshReq
		if err := c.Bind(&req); err != nil {
			return apperr.InvalidRefreshToken()
		}
		raw = req.RefreshToken
	}

	sess, err := h.Accounts.Refresh(c.Request().Context(), raw)
	if err != nil {
		return err
	}
	h.Cookies.setSession(c, sess.Access, sess.Refresh)
	return respond(c, http.StatusOK, "Access token refreshed.", sessionResp{
		User:         sess.User,
		AccessToken:  sess.Access.Token,
		RefreshToken: sess.Refresh.Token,
	})
}

// Current handles GET /users/current; the record is reloaded from the store.
func (h *UserHandler) Current(c echo.Context) error {
	u, err := h.Accounts.Get(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Current user fetched successfully.", u)
}

// ChangePassword handles PATCH /users/passwordChange.
func (h *UserHandler) ChangePassword(c echo.Context) error {
	var in service.PasswordChangeInput
	if err := c.Bind(&in); err != nil {
		return bindErr()
	}
	if err := h.Accounts.ChangePassword(c.Request().Context(), actor(c), in); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Password changed successfully.", nil)
}

// ChangeAvatar handles PUT /users/avatar (multipart field avatar).
func (h *UserHandler) ChangeAvatar(c echo.Context) error {
	f, err := stage(c, "avatar", "Avatar", h.UploadDir)
	if err != nil {
		return err
	}
	defer h.discard(f)

	u, err := h.Accounts.ChangeAvatar(c.Request().Context(), actor(c), f)
	if err != nil {
		return err
	}
	h.purge(c.Request().Context(), u.ID)
	return respond(c, http.StatusOK, "Avatar updated successfully.", u)
}

// ChangeCoverImage handles PUT /users/coverImage (multipart field coverImage).
func (h *UserHandler) ChangeCoverImage(c echo.Context) error {
	f, err := stage(c, "coverImage", "Cover image", h.UploadDir)
	if err != nil {
		return err
	}
	defer h.discard(f)

	u, err := h.Accounts.ChangeCoverImage(c.Request().Context(), actor(c), f)
	if err != nil {
		return err
	}
	h.purge(c.Request().Context(), u.ID)
	return respond(c, http.StatusOK, "Cover image updated successfully.", u)
}

// GetByID handles GET /users/:id.
func (h *UserHandler) GetByID(c echo.Context) error {
	u, err := h.Accounts.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "User fetched successfully.", u)
}

// Update handles PUT /users/update.
func (h *UserHandler) Update(c echo.Context) error {
	var in service.ProfileInput
	if err := c.Bind(&in); err != nil {
		return bindErr()
	}
	u, err := h.Accounts.UpdateProfile(c.Request().Context(), actor(c), in)
	if err != nil {
		return err
	}
	h.purge(c.Request().Context(), u.ID)
	return respond(c, http.StatusOK, "User updated successfully.", u)
}

// Delete handles DELETE /users/:id.  Deleting oneself also ends the session.
func (h *UserHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	a := actor(c)
	if err := h.Accounts.Delete(c.Request().Context(), a, id); err != nil {
		return err
	}
	h.purge(c.Request().Context(), id)
	if a.ID == id {
		h.Cookies.clearSession(c)
	}
	return c.NoContent(http.StatusNoContent)
}
