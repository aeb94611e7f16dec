package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/errs"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultSessionsLimit = 20

// StreamHandler handles the camera streaming control API.
type StreamHandler struct {
	svc service.StreamServicer
	log *zap.Logger
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(svc service.StreamServicer, log *zap.Logger) *StreamHandler {
	return &StreamHandler{svc: svc, log: log}
}

// writeError maps core errors to HTTP statuses.
func (h *StreamHandler) writeError(c *gin.Context, err error) {
	var connErr *errs.ConnectError
	switch {
	case errors.Is(err, errs.ErrInvalidCameraID), errors.Is(err, errs.ErrMissingCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrCameraNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
	case errors.Is(err, errs.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.As(err, &connErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "camera connection failed",
			"message": err.Error(),
			"tried":   len(connErr.Tried),
		})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func cameraID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrInvalidCameraID.Error()})
		return 0, false
	}
	return id, true
}

// StartCamera godoc
// POST /streams/cameras/:id/start
func (h *StreamHandler) StartCamera(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	resp, err := h.svc.StartSession(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StopCamera godoc
// POST /streams/cameras/:id/stop
func (h *StreamHandler) StopCamera(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	if err := h.svc.StopSession(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StopAll godoc
// POST /streams/stop-all
func (h *StreamHandler) StopAll(c *gin.Context) {
	if err := h.svc.StopAll(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Active godoc
// GET /streams/active
func (h *StreamHandler) Active(c *gin.Context) {
	c.JSON(http.StatusOK, model.ActiveStreamsResponse{Cameras: h.svc.ListActiveCameras()})
}

// Connect godoc
// POST /streams/connect
func (h *StreamHandler) Connect(c *gin.Context) {
	var req model.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	resp, err := h.svc.ConnectByCredentials(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetSession godoc
// GET /sessions/:id
func (h *StreamHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	sess, err := h.svc.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// CameraSessions godoc
// GET /streams/cameras/:id/sessions?limit=20
func (h *StreamHandler) CameraSessions(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	limit := defaultSessionsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	sessions, err := h.svc.CameraSessions(c.Request.Context(), id, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	c.JSON(http.StatusOK, model.CameraSessionsResponse{CameraID: id, Sessions: sessions})
}
