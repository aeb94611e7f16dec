package router

import (
	"net/http"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/handler"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"github.com/VoTanTai-dp/smart-village-sub000/pkg/constants"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// New builds the HTTP router. allowOrigins of ["*"] or empty allows any origin.
func New(
	streams *handler.StreamHandler,
	live *handler.LiveWSHandler,
	health *handler.HealthHandler,
	allowOrigins []string,
) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(allowOrigins))

	r.GET(constants.PathHealth, health.Health)
	r.GET(constants.PathReady, health.Ready)

	s := r.Group("/streams")
	{
		s.POST("/cameras/:id/start", streams.StartCamera)
		s.POST("/cameras/:id/stop", streams.StopCamera)
		s.GET("/cameras/:id/sessions", streams.CameraSessions)
		s.POST("/stop-all", streams.StopAll)
		s.GET("/active", streams.Active)
		s.POST("/connect", streams.Connect)
	}
	r.GET("/sessions/:id", streams.GetSession)

	// WebSocket: /ws/{frames,sensor,count}?camera_id=
	r.GET(constants.PathWSFrames, live.Serve(model.CategoryFrame))
	r.GET(constants.PathWSSensor, live.Serve(model.CategorySensor))
	r.GET(constants.PathWSCount, live.Serve(model.CategoryCount))

	return r
}

func corsMiddleware(allowOrigins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	cfg.MaxAge = 12 * time.Hour
	if len(allowOrigins) == 0 || (len(allowOrigins) == 1 && allowOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowOrigins
	}
	return cors.New(cfg)
}
