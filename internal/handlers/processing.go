package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/memohai/docdesk/internal/documents"
	"github.com/memohai/docdesk/internal/files"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// ProcessRequest starts text extraction of an upload.
type ProcessRequest struct {
	Filename string `form:"filename" json:"filename" validate:"required"`
	Engine   string `form:"engine" json:"engine" validate:"omitempty,oneof=ocr parse"`
}

// ProcessTextResponse carries the extracted text of a finished job.
type ProcessTextResponse struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

type documentProcessor interface {
	Start(ctx context.Context, filename, engine string) (documents.Status, error)
	Status(filename string) (documents.Status, bool)
	Text(ctx context.Context, filename string) (string, error)
	Subscribe(filename string) (<-chan documents.Event, func())
}

type ProcessingHandler struct {
	logger       *slog.Logger
	processor    documentProcessor
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

func NewProcessingHandler(log *slog.Logger, processor documentProcessor) *ProcessingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ProcessingHandler{
		logger:    log.With(slog.String("handler", "processing")),
		processor: processor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: wsPingInterval,
	}
}

func (h *ProcessingHandler) Register(e *echo.Echo) {
	e.POST("/process", h.Start)
	e.GET("/process/status/:filename", h.Status)
	e.GET("/process/text/:filename", h.Text)
	e.GET("/process/ws", h.Watch)
}

// Start godoc
// @Summary Extract text from an upload in the background
// @Tags processing
// @Param filename formData string true "File name"
// @Param engine formData string false "ocr or parse"
// @Success 202 {object} documents.Status
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /process [post]
func (h *ProcessingHandler) Start(c echo.Context) error {
	var req ProcessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Engine = strings.ToLower(strings.TrimSpace(req.Engine))
	if err := c.Validate(&req); err != nil {
		return err
	}
	status, err := h.processor.Start(c.Request().Context(), req.Filename, req.Engine)
	if err != nil {
		switch {
		case errors.Is(err, files.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "file not found")
		case errors.Is(err, files.ErrInvalidName), errors.Is(err, documents.ErrUnknownEngine):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, documents.ErrAlreadyRunning):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, documents.ErrQueueFull):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.Error("start processing failed", slog.String("filename", req.Filename), slog.Any("error", err))
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusAccepted, status)
}

// Status godoc
// @Summary Processing status of an upload
// @Tags processing
// @Param filename path string true "File name"
// @Success 200 {object} documents.Status
// @Failure 404 {object} ErrorResponse
// @Router /process/status/{filename} [get]
func (h *ProcessingHandler) Status(c echo.Context) error {
	status, ok := h.processor.Status(c.Param("filename"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no processing status for file")
	}
	return c.JSON(http.StatusOK, status)
}

// Text godoc
// @Summary Extracted text of an upload
// @Tags processing
// @Param filename path string true "File name"
// @Success 200 {object} ProcessTextResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /process/text/{filename} [get]
func (h *ProcessingHandler) Text(c echo.Context) error {
	filename := c.Param("filename")
	text, err := h.processor.Text(c.Request().Context(), filename)
	if err != nil {
		switch {
		case errors.Is(err, documents.ErrNotReady):
			return echo.NewHTTPError(http.StatusConflict, "processing has not finished")
		case errors.Is(err, documents.ErrNotProcessed), errors.Is(err, files.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, files.ErrPathTraversal), errors.Is(err, files.ErrInvalidName):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, ProcessTextResponse{Filename: filename, Text: text})
}

// Watch godoc
// @Summary Push processing status events over a websocket
// @Description Sends the current status first, then every transition. An empty filename watches all uploads.
// @Tags processing
// @Param filename query string false "File name"
// @Router /process/ws [get]
func (h *ProcessingHandler) Watch(c echo.Context) error {
	filename := strings.TrimSpace(c.QueryParam("filename"))
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return nil
	}
	defer conn.Close()

	// Subscribe before reading the current status so no transition is lost.
	events, unsubscribe := h.processor.Subscribe(filename)
	defer unsubscribe()

	if filename != "" {
		if status, ok := h.processor.Status(filename); ok {
			if err := h.write(conn, documents.Event{
				Filename: status.Filename,
				Status:   status.Status,
				Engine:   status.Engine,
				Pages:    status.Pages,
				Error:    status.Error,
			}); err != nil {
				return nil
			}
		}
	}

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := h.write(conn, event); err != nil {
				h.logger.Debug("websocket write failed", slog.Any("error", err))
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return nil
			}
		}
	}
}

func (h *ProcessingHandler) write(conn *websocket.Conn, event documents.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(event)
}

// readPump drains client frames so pongs and close frames are processed.
func (h *ProcessingHandler) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
