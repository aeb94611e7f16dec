package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/errs"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/keyed"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/transcoder"
	"go.uber.org/zap"
)

// CameraStore is the read side of the camera registry plus find-or-create.
type CameraStore interface {
	Get(ctx context.Context, id int) (*model.Camera, error)
	FindByCredentials(ctx context.Context, ip string, port int, username, password string) (*model.Camera, error)
	Create(ctx context.Context, cam *model.Camera) error
}

// Connector resolves a working stream URL for a camera.
type Connector interface {
	ConnectWithFallback(ctx context.Context, creds model.Credentials) (*transcoder.Connection, error)
}

// Workers is the transcoder registry.
type Workers interface {
	Start(cameraID int, streamURL string) (*transcoder.Worker, bool, error)
	Stop(cameraID int)
	StopAll()
	ListActive() []int
	Stats() []transcoder.WorkerStats
	OnExit(fn func(cameraID int, err error))
}

// SessionJob is a background job keyed by session id.
type SessionJob interface {
	Start(sessionID string, creds model.Credentials) bool
	Stop(sessionID string)
	StopAll()
}

// StreamServicer is what the HTTP layer needs from the orchestrator.
type StreamServicer interface {
	StartSession(ctx context.Context, cameraID int) (*model.StartStreamResponse, error)
	StopSession(ctx context.Context, cameraID int) error
	StopAll(ctx context.Context) error
	ListActiveCameras() []int
	ConnectByCredentials(ctx context.Context, req model.ConnectRequest) (*model.StartStreamResponse, error)
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	CameraSessions(ctx context.Context, cameraID int, limit int) ([]*model.Session, error)
	WorkerStats() []transcoder.WorkerStats
}

// OrchestratorDeps wires the orchestrator. Sensors, Counts and Closers are optional.
type OrchestratorDeps struct {
	Cameras   CameraStore
	Connector Connector
	Workers   Workers
	Sessions  *SessionService
	Sensors   SessionJob
	Counts    SessionJob
	WS        *WSConfig
	Closers   []io.Closer
	Logger    *zap.Logger
}

// Orchestrator coordinates workers, sessions and per-session jobs for the
// request handlers. Start and stop of one camera run under a per-camera
// lock, so each one completes before the other begins.
type Orchestrator struct {
	cameras   CameraStore
	connector Connector
	workers   Workers
	sessions  *SessionService
	jobs      []SessionJob
	ws        *WSConfig
	closers   []io.Closer
	log       *zap.Logger

	lifecycle keyed.Mutex[int]
}

// NewOrchestrator creates the facade and hooks worker exit logging.
func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		cameras:   d.Cameras,
		connector: d.Connector,
		workers:   d.Workers,
		sessions:  d.Sessions,
		ws:        d.WS,
		closers:   d.Closers,
		log:       d.Logger,
	}
	for _, j := range []SessionJob{d.Sensors, d.Counts} {
		if j != nil {
			o.jobs = append(o.jobs, j)
		}
	}
	o.workers.OnExit(o.workerExited)
	return o
}

// workerExited only logs: the session stays open until an explicit stop.
func (o *Orchestrator) workerExited(cameraID int, err error) {
	o.log.Warn("transcoder exited unexpectedly", zap.Int("camera_id", cameraID), zap.Error(err))
}

func (o *Orchestrator) camera(ctx context.Context, cameraID int) (model.Credentials, error) {
	if cameraID <= 0 {
		return model.Credentials{}, errs.ErrInvalidCameraID
	}
	cam, err := o.cameras.Get(ctx, cameraID)
	if err != nil {
		return model.Credentials{}, err
	}
	return model.CredentialsFromCamera(cam), nil
}

// StartSession connects the camera through the candidate URLs, then opens or
// reuses its session and starts the session jobs. A connect failure leaves no
// state behind.
func (o *Orchestrator) StartSession(ctx context.Context, cameraID int) (*model.StartStreamResponse, error) {
	creds, err := o.camera(ctx, cameraID)
	if err != nil {
		return nil, err
	}
	unlock := o.lifecycle.Lock(cameraID)
	defer unlock()

	conn, err := o.connector.ConnectWithFallback(ctx, creds)
	if err != nil {
		return nil, err
	}
	return o.attach(ctx, creds, conn.URL, conn.Reused, conn.Worker)
}

// StartWithURL starts the camera on a known-good stream URL without probing.
func (o *Orchestrator) StartWithURL(ctx context.Context, cameraID int, streamURL string) (*model.StartStreamResponse, error) {
	creds, err := o.camera(ctx, cameraID)
	if err != nil {
		return nil, err
	}
	unlock := o.lifecycle.Lock(cameraID)
	defer unlock()

	w, reused, err := o.workers.Start(cameraID, streamURL)
	if err != nil {
		return nil, err
	}
	return o.attach(ctx, creds, streamURL, reused, w)
}

// attach runs after a successful connect. If the session cannot be opened
// the worker keeps running and stays listed so a later stop can reap it.
func (o *Orchestrator) attach(ctx context.Context, creds model.Credentials, streamURL string, reused bool, w *transcoder.Worker) (*model.StartStreamResponse, error) {
	log := o.log.With(zap.Int("camera_id", creds.CameraID))

	sess, _, err := o.sessions.OpenOrReuse(ctx, creds.CameraID)
	if err != nil {
		log.Error("open session after connect", zap.Error(err))
		return nil, fmt.Errorf("open session for camera %d: %w", creds.CameraID, err)
	}
	if w != nil {
		w.SetSession(sess.ID)
	}
	for _, j := range o.jobs {
		j.Start(sess.ID, creds)
	}

	log.Info("camera session started", zap.String("session_id", sess.ID), zap.Bool("reused", reused))
	return &model.StartStreamResponse{
		CameraID:      creds.CameraID,
		ConnectionURL: streamURL,
		SessionID:     sess.ID,
		Reused:        reused,
		WS:            o.ws.Endpoints(creds.CameraID),
	}, nil
}

// StopSession closes the open session of the camera, stops its jobs and then
// the worker. Stopping a camera that is not running succeeds.
func (o *Orchestrator) StopSession(ctx context.Context, cameraID int) error {
	if cameraID <= 0 {
		return errs.ErrInvalidCameraID
	}
	unlock := o.lifecycle.Lock(cameraID)
	defer unlock()

	sess, closeErr := o.sessions.CloseActiveForCamera(ctx, cameraID)
	if sess != nil {
		for _, j := range o.jobs {
			j.Stop(sess.ID)
		}
	}
	o.workers.Stop(cameraID)

	if closeErr != nil {
		o.log.Error("close session", zap.Int("camera_id", cameraID), zap.Error(closeErr))
		return fmt.Errorf("close session for camera %d: %w", cameraID, closeErr)
	}
	o.log.Info("camera session stopped", zap.Int("camera_id", cameraID))
	return nil
}

// StopAll stops every active camera and every camera whose session is still
// open after its worker exited, then clears any job or worker left over.
func (o *Orchestrator) StopAll(ctx context.Context) error {
	var errList []error
	ids := o.workers.ListActive()
	open, err := o.sessions.OpenCameras(ctx)
	if err != nil {
		errList = append(errList, fmt.Errorf("list open sessions: %w", err))
	}
	seen := make(map[int]struct{}, len(ids)+len(open))
	for _, id := range append(ids, open...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if err := o.StopSession(ctx, id); err != nil {
			errList = append(errList, err)
		}
	}
	for _, j := range o.jobs {
		j.StopAll()
	}
	o.workers.StopAll()
	return errors.Join(errList...)
}

// ListActiveCameras returns camera ids with a live worker.
func (o *Orchestrator) ListActiveCameras() []int {
	return o.workers.ListActive()
}

// ConnectByCredentials finds the camera with exactly these credentials,
// creating it if needed, and starts its session.
func (o *Orchestrator) ConnectByCredentials(ctx context.Context, req model.ConnectRequest) (*model.StartStreamResponse, error) {
	ip := strings.TrimSpace(req.IP)
	if ip == "" || req.Username == "" || req.Password == "" {
		return nil, errs.ErrMissingCredentials
	}
	port := req.Port
	if port == 0 {
		port = transcoder.DefaultRTSPPort
	}

	cam, err := o.cameras.FindByCredentials(ctx, ip, port, req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	if cam == nil {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = "Camera " + ip
		}
		cam = &model.Camera{Name: name, IP: ip, Port: port, Username: req.Username, Password: req.Password}
		if err := o.cameras.Create(ctx, cam); err != nil {
			return nil, fmt.Errorf("create camera: %w", err)
		}
		o.log.Info("camera registered", zap.Int("camera_id", cam.ID), zap.String("ip", ip))
	}
	return o.StartSession(ctx, cam.ID)
}

// GetSession returns one session by id.
func (o *Orchestrator) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	return o.sessions.Get(ctx, sessionID)
}

// CameraSessions lists recent sessions of a camera, newest first.
func (o *Orchestrator) CameraSessions(ctx context.Context, cameraID int, limit int) ([]*model.Session, error) {
	if cameraID <= 0 {
		return nil, errs.ErrInvalidCameraID
	}
	return o.sessions.ListByCamera(ctx, cameraID, limit)
}

// WorkerStats returns per-camera transcoder counters.
func (o *Orchestrator) WorkerStats() []transcoder.WorkerStats {
	return o.workers.Stats()
}

// Shutdown stops everything and closes the broker sinks. It returns early
// with ctx's error if stopping takes too long.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- o.StopAll(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	for _, c := range o.closers {
		if cerr := c.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}
