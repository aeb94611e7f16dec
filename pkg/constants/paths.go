package constants

// Пути health, ready и live-каналов.
const (
	PathHealth = "/health"
	PathReady  = "/ready"

	PathWSFrames = "/ws/frames"
	PathWSSensor = "/ws/sensor"
	PathWSCount  = "/ws/count"

	// QueryCameraID narrows a live channel to one camera.
	QueryCameraID = "camera_id"
)
