package handlers

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/docdesk/internal/config"
)

//go:embed web
var webAssets embed.FS

// WebHandler serves the browser UI and the upload/output file mounts.
type WebHandler struct {
	logger    *slog.Logger
	assets    fs.FS
	uploadDir string
	outputDir string
}

func NewWebHandler(log *slog.Logger, cfg config.Config) *WebHandler {
	if log == nil {
		log = slog.Default()
	}
	assets, err := fs.Sub(webAssets, "web")
	if err != nil {
		panic(err)
	}
	return &WebHandler{
		logger:    log.With(slog.String("handler", "web")),
		assets:    assets,
		uploadDir: cfg.Storage.UploadDir,
		outputDir: cfg.Storage.OutputDir,
	}
}

func (h *WebHandler) Register(e *echo.Echo) {
	e.GET("/", h.Index)
	e.StaticFS("/static", echo.MustSubFS(h.assets, "static"))
	if h.uploadDir != "" {
		e.Static("/uploads", h.uploadDir)
	}
	if h.outputDir != "" {
		e.Static("/output", h.outputDir)
	}
}

func (h *WebHandler) Index(c echo.Context) error {
	page, err := fs.ReadFile(h.assets, "index.html")
	if err != nil {
		h.logger.Error("read index failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "index page unavailable")
	}
	return c.HTMLBlob(http.StatusOK, page)
}
