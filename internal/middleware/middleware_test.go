package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/video-share-api/internal/apperr"
	"github.com/iliyamo/video-share-api/internal/model"
	"github.com/iliyamo/video-share-api/internal/repository"
	"github.com/iliyamo/video-share-api/internal/utils"
)

var testTokens = utils.NewTokenService("access-secret", "refresh-secret", time.Minute, time.Hour, "test")

func newCtx(req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func ok(c echo.Context) error { return c.NoContent(http.StatusOK) }

func accessFor(t *testing.T, id string, role model.Role) string {
	t.Helper()
	tok, err := testTokens.IssueAccess(&model.User{ID: id, Username: id, Email: id + "@example.com", Role: role})
	require.NoError(t, err)
	return tok.Token
}

func TestJWTAuth_Missing(t *testing.T) {
	c, _ := newCtx(httptest.NewRequest(http.MethodGet, "/", nil))
	err := JWTAuth(testTokens)(ok)(c)
	require.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestJWTAuth_InvalidIsForbidden(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	c, _ := newCtx(req)

	called := false
	err := JWTAuth(testTokens)(func(echo.Context) error { called = true; return nil })(c)
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	require.False(t, called)
}

func TestJWTAuth_RefreshTokenRejected(t *testing.T) {
	ref, err := testTokens.IssueRefresh(&model.User{ID: "u1"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+ref.Token)
	c, _ := newCtx(req)

	require.Equal(t, apperr.KindForbidden, apperr.KindOf(JWTAuth(testTokens)(ok)(c)))
}

func TestJWTAuth_CookieWinsOverHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: accessFor(t, "cookie-user", model.RoleAdmin)})
	req.Header.Set("Authorization", "Bearer "+accessFor(t, "header-user", model.RoleUser))
	c, rec := newCtx(req)

	require.NoError(t, JWTAuth(testTokens)(ok)(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cookie-user", UserID(c))
	require.Equal(t, model.RoleAdmin, Role(c))
	require.Equal(t, "cookie-user@example.com", Claims(c).Email)
}

func TestJWTAuth_Bearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+accessFor(t, "u1", model.RoleUser))
	c, _ := newCtx(req)

	require.NoError(t, JWTAuth(testTokens)(ok)(c))
	require.Equal(t, "u1", UserID(c))
}

type stubLoader struct {
	user model.User
	err  error
}

func (s stubLoader) Authoritative(context.Context, string) (model.User, error) { return s.user, s.err }

func authed(t *testing.T, id string, role model.Role) echo.Context {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+accessFor(t, id, role))
	c, _ := newCtx(req)
	require.NoError(t, JWTAuth(testTokens)(func(echo.Context) error { return nil })(c))
	return c
}

func TestRequireAdmin(t *testing.T) {
	cases := []struct {
		name   string
		claim  model.Role
		loader stubLoader
		want   apperr.Kind
		pass   bool
	}{
		{"both admin", model.RoleAdmin, stubLoader{user: model.User{ID: "a", Role: model.RoleAdmin}}, 0, true},
		{"stale admin claim", model.RoleAdmin, stubLoader{user: model.User{ID: "a", Role: model.RoleUser}}, apperr.KindForbidden, false},
		{"user claim, admin record", model.RoleUser, stubLoader{user: model.User{ID: "a", Role: model.RoleAdmin}}, apperr.KindForbidden, false},
		{"record gone", model.RoleAdmin, stubLoader{err: repository.ErrUserNotFound}, apperr.KindForbidden, false},
		{"store down", model.RoleAdmin, stubLoader{err: errors.New("db down")}, apperr.KindInternal, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := authed(t, "a", tc.claim)
			called := false
			err := RequireAdmin(tc.loader, nil)(func(echo.Context) error { called = true; return nil })(c)
			require.Equal(t, tc.pass, called)
			if tc.pass {
				require.NoError(t, err)
				return
			}
			require.Equal(t, tc.want, apperr.KindOf(err))
		})
	}
}

func TestRequireRole(t *testing.T) {
	c := authed(t, "u", model.RoleUser)
	require.NoError(t, RequireRole(model.RoleUser, model.RoleAdmin)(ok)(c))
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(RequireRole(model.RoleAdmin)(ok)(c)))

	anon, _ := newCtx(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(RequireRole(model.RoleUser)(ok)(anon)))
}
