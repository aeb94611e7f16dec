package model

import "time"

// Category identifies a live channel. Subscribers only see their own category.
type Category string

const (
	CategoryFrame  Category = "frame"
	CategorySensor Category = "sensor"
	CategoryCount  Category = "count"
)

// Categories lists every live channel.
var Categories = []Category{CategoryFrame, CategorySensor, CategoryCount}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryFrame, CategorySensor, CategoryCount:
		return true
	}
	return false
}

// Message is the JSON envelope delivered to live subscribers.
type Message struct {
	Type      Category  `json:"type"`
	CameraID  int       `json:"cameraId"`
	SessionID string    `json:"sessionId,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// frame
	Seq  uint64 `json:"seq,omitempty"`
	Data []byte `json:"data,omitempty"`

	// sensor
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`

	// count
	People  *int `json:"people,omitempty"`
	Vehicle *int `json:"vehicle,omitempty"`
}
