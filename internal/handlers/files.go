package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/docdesk/internal/documents"
	"github.com/memohai/docdesk/internal/files"
)

const (
	uploadsURLPrefix = "/uploads/"
	outputURLPrefix  = "/output/"
)

// FileUploadResponse is returned after a successful upload.
type FileUploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

// FileRemoveRequest names the upload to delete.
type FileRemoveRequest struct {
	Filename string `form:"filename" json:"filename" validate:"required"`
}

// FileRemoveResponse lists the thumbnail URLs removed with the upload.
type FileRemoveResponse struct {
	Message   string   `json:"message"`
	Filename  string   `json:"filename"`
	Removed   []string `json:"removed"`
	OutputDir bool     `json:"output_dir"`
}

// FileListResponse is the response for GET /files.
type FileListResponse struct {
	Files []string `json:"files"`
}

// ScreenshotRequest names the upload to preview.
type ScreenshotRequest struct {
	FilePath string `form:"file_path" json:"file_path" validate:"required"`
}

// ScreenshotResponse carries preview image URLs in page order.
type ScreenshotResponse struct {
	Thumbnails []string `json:"thumbnails"`
}

type thumbnailer interface {
	Ensure(ctx context.Context, name string) ([]string, error)
}

type statusForgetter interface {
	Forget(filename string) error
}

type FilesHandler struct {
	logger *slog.Logger
	files  *files.Service
	thumbs thumbnailer
	status statusForgetter
}

func NewFilesHandler(log *slog.Logger, svc *files.Service, thumbs thumbnailer, status statusForgetter) *FilesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &FilesHandler{
		logger: log.With(slog.String("handler", "files")),
		files:  svc,
		thumbs: thumbs,
		status: status,
	}
}

func (h *FilesHandler) Register(e *echo.Echo) {
	e.POST("/upload", h.Upload)
	e.POST("/remove", h.Remove)
	e.GET("/files", h.List)
	e.POST("/screenshot", h.Screenshot)
}

// Upload godoc
// @Summary Upload a document
// @Tags files
// @Accept multipart/form-data
// @Param file formData file true "Document"
// @Success 200 {object} FileUploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Router /upload [post]
func (h *FilesHandler) Upload(c echo.Context) error {
	header, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := header.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer src.Close()

	name, err := files.SanitizeName(header.Filename)
	if err != nil {
		return fileError(err)
	}
	if err := h.forget(name); err != nil {
		return err
	}
	name, err = h.files.Save(c.Request().Context(), name, src)
	if err != nil {
		return fileError(err)
	}
	return c.JSON(http.StatusOK, FileUploadResponse{
		Message:  "File uploaded successfully",
		Filename: name,
	})
}

// Remove godoc
// @Summary Remove a document with its thumbnails and extracted text
// @Tags files
// @Param filename formData string true "File name"
// @Success 200 {object} FileRemoveResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /remove [post]
func (h *FilesHandler) Remove(c echo.Context) error {
	var req FileRemoveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.forget(req.Filename); err != nil {
		return err
	}
	result, err := h.files.Remove(c.Request().Context(), req.Filename)
	if err != nil {
		return fileError(err)
	}
	return c.JSON(http.StatusOK, FileRemoveResponse{
		Message:   "file and thumbnails removed",
		Filename:  result.Filename,
		Removed:   prefixAll(outputURLPrefix, result.Thumbnails),
		OutputDir: result.OutputDir,
	})
}

// List godoc
// @Summary List uploaded documents
// @Tags files
// @Success 200 {object} FileListResponse
// @Failure 500 {object} ErrorResponse
// @Router /files [get]
func (h *FilesHandler) List(c echo.Context) error {
	names, err := h.files.List(c.Request().Context())
	if err != nil {
		h.logger.Error("list uploads failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, FileListResponse{Files: names})
}

// Screenshot godoc
// @Summary Page previews of a document
// @Description PDFs are rendered to one PNG per page on first request; other files are served as uploaded.
// @Tags files
// @Param file_path formData string true "File name"
// @Success 200 {object} ScreenshotResponse
// @Failure 404 {object} ErrorResponse
// @Router /screenshot [post]
func (h *FilesHandler) Screenshot(c echo.Context) error {
	var req ScreenshotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	ok, err := h.files.Exists(ctx, req.FilePath)
	if err != nil {
		return fileError(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}
	if !documents.IsPDF(req.FilePath) {
		return c.JSON(http.StatusOK, ScreenshotResponse{Thumbnails: []string{uploadsURLPrefix + req.FilePath}})
	}
	keys, err := h.thumbs.Ensure(ctx, req.FilePath)
	if err != nil {
		h.logger.Error("render thumbnails failed", slog.String("filename", req.FilePath), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render thumbnails")
	}
	return c.JSON(http.StatusOK, ScreenshotResponse{Thumbnails: prefixAll(outputURLPrefix, keys)})
}

// forget drops the processing status of name so a replaced or removed upload
// does not report stale results. A file with a job in flight cannot be changed.
func (h *FilesHandler) forget(name string) error {
	if h.status == nil {
		return nil
	}
	if err := h.status.Forget(name); err != nil {
		if errors.Is(err, documents.ErrAlreadyRunning) {
			return echo.NewHTTPError(http.StatusConflict, "file is being processed")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return nil
}

func fileError(err error) error {
	switch {
	case errors.Is(err, files.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	case errors.Is(err, files.ErrInvalidName), errors.Is(err, files.ErrPathTraversal):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, files.ErrTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func prefixAll(prefix string, keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, prefix+key)
	}
	return out
}
