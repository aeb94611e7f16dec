package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/service"
	"github.com/VoTanTai-dp/smart-village-sub000/pkg/constants"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	readLimit  = 512
)

// LiveWSHandler serves the live channels: /ws/frames, /ws/sensor, /ws/count.
type LiveWSHandler struct {
	hub    *service.StreamHub
	logger *zap.Logger
}

// NewLiveWSHandler creates the WebSocket handler.
func NewLiveWSHandler(hub *service.StreamHub, logger *zap.Logger) *LiveWSHandler {
	return &LiveWSHandler{hub: hub, logger: logger}
}

// Serve returns the upgrade handler of one category. An optional
// ?camera_id= narrows delivery to one camera.
func (h *LiveWSHandler) Serve(category model.Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		cameraID := 0
		if raw := c.Query(constants.QueryCameraID); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil || id <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera_id"})
				return
			}
			cameraID = id
		}

		conn, err := h.hub.Upgrader().Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		sub, cleanup := h.hub.Subscribe(category, cameraID)
		go h.writePump(conn, sub, cleanup)
		h.readPump(conn, cleanup)
	}
}

// readPump discards client messages; it only tracks liveness.
func (h *LiveWSHandler) readPump(conn *websocket.Conn, cleanup func()) {
	defer func() {
		cleanup()
		_ = conn.Close()
	}()
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump sends queued messages until the queue is closed or a write
// fails; a failed subscriber is removed from the hub.
func (h *LiveWSHandler) writePump(conn *websocket.Conn, sub *service.Subscriber, cleanup func()) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cleanup()
		_ = conn.Close()
	}()
	for {
		select {
		case data, ok := <-sub.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("write error", zap.Uint64("subscriber_id", sub.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
