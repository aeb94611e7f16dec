package router

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/handler"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestRouter(ping func() error, origins []string) http.Handler {
	gin.SetMode(gin.TestMode)
	hub := service.NewStreamHub(4, 1024, 1024, zap.NewNop())
	return New(
		handler.NewStreamHandler(nil, zap.NewNop()),
		handler.NewLiveWSHandler(hub, zap.NewNop()),
		handler.NewHealthHandler(hub, nil, ping),
		origins,
	)
}

func TestHealthAndReady(t *testing.T) {
	r := newTestRouter(nil, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"service":"smart-village"`)
	assert.Contains(t, w.Body.String(), `"hub"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.JSONEq(t, `{"status":"ready"}`, w.Body.String())
}

func TestReadyReportsDatabaseFailure(t *testing.T) {
	r := newTestRouter(func() error { return errors.New("connection refused") }, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	r := newTestRouter(nil, []string{"http://dashboard.local"})

	req := httptest.NewRequest(http.MethodOptions, "/streams/active", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "http://dashboard.local", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.local")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
