package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/errs"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/transcoder"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStreams struct {
	startErr error
	stopErr  error
	stopped  []int
	connect  model.ConnectRequest
	sessions map[string]*model.Session
}

func (f *fakeStreams) StartSession(_ context.Context, id int) (*model.StartStreamResponse, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &model.StartStreamResponse{CameraID: id, ConnectionURL: "rtsp://cam/live", SessionID: "s-1"}, nil
}

func (f *fakeStreams) StopSession(_ context.Context, id int) error {
	f.stopped = append(f.stopped, id)
	return f.stopErr
}

func (f *fakeStreams) StopAll(context.Context) error { return nil }

func (f *fakeStreams) ListActiveCameras() []int { return []int{3, 7} }

func (f *fakeStreams) ConnectByCredentials(_ context.Context, req model.ConnectRequest) (*model.StartStreamResponse, error) {
	f.connect = req
	return &model.StartStreamResponse{CameraID: 12, SessionID: "s-2"}, nil
}

func (f *fakeStreams) GetSession(_ context.Context, id string) (*model.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, errs.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeStreams) CameraSessions(_ context.Context, id int, limit int) ([]*model.Session, error) {
	return nil, nil
}

func (f *fakeStreams) WorkerStats() []transcoder.WorkerStats { return nil }

func newTestEngine(svc *fakeStreams) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewStreamHandler(svc, zap.NewNop())
	r := gin.New()
	r.POST("/streams/cameras/:id/start", h.StartCamera)
	r.POST("/streams/cameras/:id/stop", h.StopCamera)
	r.GET("/streams/cameras/:id/sessions", h.CameraSessions)
	r.POST("/streams/stop-all", h.StopAll)
	r.GET("/streams/active", h.Active)
	r.POST("/streams/connect", h.Connect)
	r.GET("/sessions/:id", h.GetSession)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStartCamera(t *testing.T) {
	r := newTestEngine(&fakeStreams{})

	w := do(r, http.MethodPost, "/streams/cameras/7/start", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.StartStreamResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.CameraID)
	assert.Equal(t, "s-1", resp.SessionID)
}

func TestStartCameraErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"missing credentials", errs.ErrMissingCredentials, http.StatusBadRequest},
		{"camera not found", errs.ErrCameraNotFound, http.StatusNotFound},
		{"connect failure", &errs.ConnectError{CameraID: 7, Tried: []string{"a", "b"}, Last: errors.New("timeout")}, http.StatusBadGateway},
		{"other", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestEngine(&fakeStreams{startErr: tc.err})
			w := do(r, http.MethodPost, "/streams/cameras/7/start", "")
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestInvalidCameraID(t *testing.T) {
	r := newTestEngine(&fakeStreams{})

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/streams/cameras/abc/start", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/streams/cameras/0/stop", "").Code)
}

func TestStopCameraAndStopAll(t *testing.T) {
	svc := &fakeStreams{}
	r := newTestEngine(svc)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/streams/cameras/7/stop", "").Code)
	assert.Equal(t, []int{7}, svc.stopped)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/streams/stop-all", "").Code)
}

func TestActive(t *testing.T) {
	r := newTestEngine(&fakeStreams{})

	w := do(r, http.MethodGet, "/streams/active", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cameras":[3,7]}`, w.Body.String())
}

func TestConnectValidatesBody(t *testing.T) {
	svc := &fakeStreams{}
	r := newTestEngine(svc)

	w := do(r, http.MethodPost, "/streams/connect", `{"ip":"10.0.0.9"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/streams/connect", `{"ip":"10.0.0.9","username":"admin","password":"pw","port":554}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10.0.0.9", svc.connect.IP)
	assert.Equal(t, 554, svc.connect.Port)
}

func TestGetSession(t *testing.T) {
	r := newTestEngine(&fakeStreams{sessions: map[string]*model.Session{
		"s-1": {ID: "s-1", CameraID: 7},
	}})

	w := do(r, http.MethodGet, "/sessions/s-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"camera_id":7`)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/sessions/nope", "").Code)
}

func TestCameraSessionsReturnsEmptyList(t *testing.T) {
	r := newTestEngine(&fakeStreams{})

	w := do(r, http.MethodGet, "/streams/cameras/7/sessions?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"camera_id":7,"sessions":[]}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/streams/cameras/7/sessions?limit=x", "").Code)
}
