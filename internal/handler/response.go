package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/video-share-api/internal/apperr"
)

// envelope is the body of every response.
type envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    any      `json:"data,omitempty"`
	Details []string `json:"details,omitempty"`
	Stack   string   `json:"stack,omitempty"`
}

func respond(c echo.Context, status int, msg string, data any) error {
	return c.JSON(status, envelope{Success: true, Message: msg, Data: data})
}

// ErrorHandler renders every error returned by a handler or middleware as
// the failure envelope.  Classified errors keep their status and message;
// anything else becomes a generic 500 whose cause is only logged.  Outside
// production the internal cause is echoed in "stack".
func ErrorHandler(production bool, log *zap.Logger) echo.HTTPErrorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		body := envelope{Success: false}
		status := http.StatusInternalServerError

		var ae *apperr.Error
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ae):
			status = ae.Kind.Status()
			body.Message = ae.Message
			body.Details = ae.Details
		case errors.As(err, &he):
			status = he.Code
			body.Message = fmt.Sprint(he.Message)
			if he.Internal != nil {
				err = he.Internal
			}
		default:
			ae = apperr.Internal(err)
			status = ae.Kind.Status()
			body.Message = ae.Message
		}

		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err))
		}
		if !production && status >= http.StatusInternalServerError {
			body.Stack = err.Error()
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Error("write error response", zap.Error(err))
		}
	}
}
