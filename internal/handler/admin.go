package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/video-share-api/internal/apperr"
	"github.com/iliyamo/video-share-api/internal/service"
)

// AdminHandler serves the /admin routes.  Authorization happens in the Role
// Gate before these handlers run.
type AdminHandler struct {
	Accounts *service.Accounts
}

func NewAdminHandler(acc *service.Accounts) *AdminHandler { return &AdminHandler{Accounts: acc} }

type userPage struct {
	Users  any `json:"users"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// ListUsers handles GET /admin/users?limit=&offset=.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	limit, offset := 0, 0
	if err := echo.QueryParamsBinder(c).
		Int("limit", &limit).
		Int("offset", &offset).
		BindError(); err != nil {
		return apperr.Validation([]string{"limit and offset must be integers."})
	}

	limit, offset = service.PageBounds(limit, offset)
	users, err := h.Accounts.List(c.Request().Context(), limit, offset)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Users fetched successfully.", userPage{
		Users:  users,
		Limit:  limit,
		Offset: offset,
		Count:  len(users),
	})
}
