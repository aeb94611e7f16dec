package model

import "time"

// Session is the API view of a camera session (not GORM entity).
type Session struct {
	ID        string     `json:"id"`
	CameraID  int        `json:"camera_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// Open reports whether the session has no end boundary yet.
func (s *Session) Open() bool { return s.EndTime == nil }

// SessionFromEntity maps a GORM row to the API view.
func SessionFromEntity(ent *StreamSession) *Session {
	return &Session{
		ID:        ent.ID,
		CameraID:  ent.CameraID,
		StartTime: ent.StartTime,
		EndTime:   ent.EndTime,
	}
}

// ConnectRequest is the request body for POST /streams/connect.
type ConnectRequest struct {
	Name     string `json:"name"`
	IP       string `json:"ip" binding:"required"`
	Port     int    `json:"port"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// WSEndpoints lists the live channels a dashboard can subscribe to.
type WSEndpoints struct {
	Frames string `json:"frames"`
	Sensor string `json:"sensor"`
	Count  string `json:"count"`
}

// StartStreamResponse is returned by start and connect.
type StartStreamResponse struct {
	CameraID      int         `json:"camera_id"`
	ConnectionURL string      `json:"connection_url"`
	SessionID     string      `json:"session_id"`
	Reused        bool        `json:"reused"`
	WS            WSEndpoints `json:"ws"`
}

// ActiveStreamsResponse is the response for GET /streams/active.
type ActiveStreamsResponse struct {
	Cameras []int `json:"cameras"`
}

// CameraSessionsResponse is the response for GET /streams/cameras/:id/sessions.
type CameraSessionsResponse struct {
	CameraID int        `json:"camera_id"`
	Sessions []*Session `json:"sessions"`
}
