package service

import (
	"context"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/keyed"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"go.uber.org/zap"
)

// SessionStore is the persistence the session lifecycle needs.
type SessionStore interface {
	Create(ctx context.Context, cameraID int, startTime time.Time) (*model.Session, error)
	FindOpen(ctx context.Context, cameraID int) (*model.Session, error)
	Close(ctx context.Context, sessionID string, endTime time.Time) (*model.Session, error)
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	ListByCamera(ctx context.Context, cameraID int, limit int) ([]*model.Session, error)
	OpenCameraIDs(ctx context.Context) ([]int, error)
}

// SessionService opens and closes camera sessions. It is the only writer of
// session rows; open/close for one camera are serialized so at most one
// session per camera is open.
type SessionService struct {
	store   SessionStore
	cameras keyed.Mutex[int]
	now     func() time.Time
	log     *zap.Logger
}

// NewSessionService creates a session service.
func NewSessionService(store SessionStore, log *zap.Logger) *SessionService {
	return &SessionService{store: store, now: time.Now, log: log}
}

// OpenOrReuse returns the open session of the camera or creates one.
func (s *SessionService) OpenOrReuse(ctx context.Context, cameraID int) (*model.Session, bool, error) {
	unlock := s.cameras.Lock(cameraID)
	defer unlock()

	open, err := s.store.FindOpen(ctx, cameraID)
	if err != nil {
		return nil, false, err
	}
	if open != nil {
		return open, true, nil
	}
	sess, err := s.store.Create(ctx, cameraID, s.now())
	if err != nil {
		return nil, false, err
	}
	s.log.Info("session opened", zap.Int("camera_id", cameraID), zap.String("session_id", sess.ID))
	return sess, false, nil
}

// Close stamps the end time of a session. Returns errs.ErrSessionNotFound
// for unknown ids.
func (s *SessionService) Close(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	unlock := s.cameras.Lock(sess.CameraID)
	defer unlock()
	return s.close(ctx, sessionID)
}

// CloseActiveForCamera closes the open session of a camera; nil if none.
func (s *SessionService) CloseActiveForCamera(ctx context.Context, cameraID int) (*model.Session, error) {
	unlock := s.cameras.Lock(cameraID)
	defer unlock()

	open, err := s.store.FindOpen(ctx, cameraID)
	if err != nil || open == nil {
		return nil, err
	}
	return s.close(ctx, open.ID)
}

func (s *SessionService) close(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, err := s.store.Close(ctx, sessionID, s.now())
	if err != nil {
		return nil, err
	}
	s.log.Info("session closed", zap.Int("camera_id", sess.CameraID), zap.String("session_id", sess.ID))
	return sess, nil
}

// Get returns a session by ID.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.store.Get(ctx, sessionID)
}

// ListByCamera returns recent sessions of a camera.
func (s *SessionService) ListByCamera(ctx context.Context, cameraID int, limit int) ([]*model.Session, error) {
	return s.store.ListByCamera(ctx, cameraID, limit)
}

// OpenCameras returns ids of cameras that have an open session.
func (s *SessionService) OpenCameras(ctx context.Context) ([]int, error) {
	return s.store.OpenCameraIDs(ctx)
}
