package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/video-share-api/internal/apperr"
	"github.com/iliyamo/video-share-api/internal/utils"
)

func render(t *testing.T, production bool, err error) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	ErrorHandler(production, nil)(err, c)

	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestErrorHandler_Classified(t *testing.T) {
	rec, body := render(t, true, apperr.Validation([]string{"a", "b"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, body.Success)
	require.Equal(t, []string{"a", "b"}, body.Details)

	rec, body = render(t, true, apperr.Forbidden("nope"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "nope", body.Message)
}

func TestErrorHandler_HidesInternalsInProduction(t *testing.T) {
	rec, body := render(t, true, errors.New("dial tcp 10.0.0.5:3306: refused"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, apperr.MsgInternal, body.Message)
	require.Empty(t, body.Stack)
	require.NotContains(t, rec.Body.String(), "10.0.0.5")

	_, body = render(t, false, errors.New("dial tcp 10.0.0.5:3306: refused"))
	require.Contains(t, body.Stack, "10.0.0.5")
}

func TestErrorHandler_EchoErrors(t *testing.T) {
	rec, body := render(t, true, echo.NewHTTPError(http.StatusTooManyRequests, "slow down"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "slow down", body.Message)

	rec, _ = render(t, true, echo.ErrNotFound)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorHandler_Timeout(t *testing.T) {
	rec, _ := render(t, true, apperr.UploadFailed(fmt.Errorf("put object: %w", context.DeadlineExceeded)))
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestCookiePolicy(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(echo.HeaderXForwardedProto, "https")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := CookiePolicy{RefreshPath: "/api/v1/users"}
	exp := time.Now().Add(time.Hour)
	p.setSession(c, utils.Token{Token: "a", Exp: exp}, utils.Token{Token: "r", Exp: exp})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, ck := range cookies {
		require.True(t, ck.HttpOnly)
		require.True(t, ck.Secure)
		require.Equal(t, http.SameSiteLaxMode, ck.SameSite)
		require.Greater(t, ck.MaxAge, 3500)
	}
	require.Equal(t, "/", cookies[0].Path)
	require.Equal(t, "/api/v1/users", cookies[1].Path)

	plain := httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), plain)
	p.clearSession(c)
	for _, ck := range plain.Result().Cookies() {
		require.False(t, ck.Secure)
		require.Empty(t, ck.Value)
		require.Less(t, ck.MaxAge, 0)
	}
}
