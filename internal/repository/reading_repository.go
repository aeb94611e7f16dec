package repository

import (
	"context"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"gorm.io/gorm"
)

// ReadingRepository appends sensor readings and count snapshots.
type ReadingRepository struct {
	db *gorm.DB
}

func NewReadingRepository(db *gorm.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

func (r *ReadingRepository) CreateSensorReading(ctx context.Context, sessionID string, temperature, humidity float64, at time.Time) error {
	return r.db.WithContext(ctx).Create(&model.SensorReading{
		SessionID:   sessionID,
		Temperature: temperature,
		Humidity:    humidity,
		RecordedAt:  at,
	}).Error
}

func (r *ReadingRepository) CreateCountSnapshot(ctx context.Context, sessionID string, people, vehicle int) error {
	return r.db.WithContext(ctx).Create(&model.CountSnapshot{
		SessionID: sessionID,
		People:    people,
		Vehicle:   vehicle,
	}).Error
}
