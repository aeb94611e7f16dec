package repository

import (
	"context"
	"errors"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/errs"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionRepository persists camera sessions.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts an open session starting at startTime.
func (r *SessionRepository) Create(ctx context.Context, cameraID int, startTime time.Time) (*model.Session, error) {
	ent := &model.StreamSession{
		ID:        uuid.New().String(),
		CameraID:  cameraID,
		StartTime: startTime,
	}
	if err := r.db.WithContext(ctx).Create(ent).Error; err != nil {
		return nil, err
	}
	return model.SessionFromEntity(ent), nil
}

// FindOpen returns the open session of a camera or nil.
func (r *SessionRepository) FindOpen(ctx context.Context, cameraID int) (*model.Session, error) {
	var ent model.StreamSession
	err := r.db.WithContext(ctx).
		Where("camera_id = ? AND end_time IS NULL", cameraID).
		Order("start_time DESC").
		First(&ent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.SessionFromEntity(&ent), nil
}

// Close stamps endTime on a session.
func (r *SessionRepository) Close(ctx context.Context, sessionID string, endTime time.Time) (*model.Session, error) {
	var ent model.StreamSession
	if err := r.db.WithContext(ctx).Where("id = ?", sessionID).First(&ent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrSessionNotFound
		}
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&ent).Update("end_time", endTime).Error; err != nil {
		return nil, err
	}
	ent.EndTime = &endTime
	return model.SessionFromEntity(&ent), nil
}

// Get returns a session by ID.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, errs.ErrSessionNotFound
	}
	var ent model.StreamSession
	if err := r.db.WithContext(ctx).Where("id = ?", sessionID).First(&ent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrSessionNotFound
		}
		return nil, err
	}
	return model.SessionFromEntity(&ent), nil
}

// ListByCamera returns sessions of a camera, newest first.
func (r *SessionRepository) ListByCamera(ctx context.Context, cameraID int, limit int) ([]*model.Session, error) {
	var ents []model.StreamSession
	q := r.db.WithContext(ctx).Where("camera_id = ?", cameraID).Order("start_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&ents).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Session, 0, len(ents))
	for i := range ents {
		out = append(out, model.SessionFromEntity(&ents[i]))
	}
	return out, nil
}

// OpenCameraIDs returns ids of cameras with an open session.
func (r *SessionRepository) OpenCameraIDs(ctx context.Context) ([]int, error) {
	var ids []int
	err := r.db.WithContext(ctx).
		Model(&model.StreamSession{}).
		Where("end_time IS NULL").
		Distinct().
		Pluck("camera_id", &ids).Error
	return ids, err
}
