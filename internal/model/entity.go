package model

import "time"

// Camera is a camera row (GORM). CRUD lives elsewhere; the core only reads it
// and creates one on connect-by-credentials.
type Camera struct {
	ID                int       `gorm:"primaryKey;autoIncrement"`
	Name              string    `gorm:"size:128"`
	IP                string    `gorm:"column:ip;size:255;not null"`
	Port              int       `gorm:"not null;default:554"`
	Username          string    `gorm:"size:128"`
	Password          string    `gorm:"size:128"`
	TemperatureEntity string    `gorm:"column:temperature_entity;size:255"`
	HumidityEntity    string    `gorm:"column:humidity_entity;size:255"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

func (Camera) TableName() string { return "cameras" }

// StreamSession is an interval of camera activity. EndTime == nil means open.
type StreamSession struct {
	ID        string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CameraID  int        `gorm:"not null;index"`
	StartTime time.Time  `gorm:"column:start_time;not null"`
	EndTime   *time.Time `gorm:"column:end_time"`
}

func (StreamSession) TableName() string { return "sessions" }

// SensorReading is an append-only temperature/humidity sample.
type SensorReading struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	SessionID   string    `gorm:"type:uuid;not null;index"`
	Temperature float64   `gorm:"not null"`
	Humidity    float64   `gorm:"not null"`
	RecordedAt  time.Time `gorm:"column:recorded_at;not null"`
}

func (SensorReading) TableName() string { return "sensor_readings" }

// CountSnapshot is an append-only cumulative people/vehicle count.
type CountSnapshot struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"type:uuid;not null;index"`
	People    int       `gorm:"not null"`
	Vehicle   int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (CountSnapshot) TableName() string { return "counts" }
