package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/video-share-api/internal/apperr"
	"github.com/iliyamo/video-share-api/internal/service"
)

// UploadHandler serves the generic image upload.
type UploadHandler struct {
	Assets    service.AssetStore
	UploadDir string
	Log       *zap.Logger
}

func NewUploadHandler(assets service.AssetStore, uploadDir string, log *zap.Logger) *UploadHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UploadHandler{Assets: assets, UploadDir: uploadDir, Log: log}
}

// Upload handles POST /img/upload (multipart field file) and returns the
// stored object's URL and key.
func (h *UploadHandler) Upload(c echo.Context) error {
	f, err := stage(c, "file", "File", h.UploadDir)
	if err != nil {
		return err
	}
	if f == nil {
		return apperr.Validation([]string{"File is required."})
	}
	defer func() {
		if err := f.Remove(); err != nil {
			h.Log.Warn("remove staged upload", zap.String("path", f.Path), zap.Error(err))
		}
	}()

	asset, err := h.Assets.Upload(c.Request().Context(), f.Path, f.ContentType)
	if err != nil {
		return apperr.UploadFailed(err)
	}
	return respond(c, http.StatusOK, "File uploaded successfully.", asset)
}
