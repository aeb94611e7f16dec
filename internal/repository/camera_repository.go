package repository

import (
	"context"
	"errors"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/errs"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"gorm.io/gorm"
)

// CameraRepository reads camera rows and creates them on connect-by-credentials.
type CameraRepository struct {
	db *gorm.DB
}

func NewCameraRepository(db *gorm.DB) *CameraRepository {
	return &CameraRepository{db: db}
}

// Get returns a camera by ID.
func (r *CameraRepository) Get(ctx context.Context, id int) (*model.Camera, error) {
	var cam model.Camera
	if err := r.db.WithContext(ctx).First(&cam, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrCameraNotFound
		}
		return nil, err
	}
	return &cam, nil
}

// FindByCredentials matches ip, port, username and password exactly.
func (r *CameraRepository) FindByCredentials(ctx context.Context, ip string, port int, username, password string) (*model.Camera, error) {
	var cam model.Camera
	err := r.db.WithContext(ctx).
		Where("ip = ? AND port = ? AND username = ? AND password = ?", ip, port, username, password).
		Order("id").
		First(&cam).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cam, nil
}

// Create inserts a camera and fills its ID.
func (r *CameraRepository) Create(ctx context.Context, cam *model.Camera) error {
	return r.db.WithContext(ctx).Create(cam).Error
}
