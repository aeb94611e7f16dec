package service

import (
	"fmt"
	"strings"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"github.com/VoTanTai-dp/smart-village-sub000/pkg/constants"
)

// WSConfig holds WebSocket URL base for responses.
type WSConfig struct {
	BaseURL string
}

// Endpoints returns the live channel URLs of a camera
// (e.g. wss://host/ws/frames?camera_id=7). Without a base URL the paths are relative.
func (c *WSConfig) Endpoints(cameraID int) model.WSEndpoints {
	base := ""
	if c != nil {
		base = strings.TrimRight(c.BaseURL, "/")
	}
	url := func(path string) string {
		return fmt.Sprintf("%s%s?%s=%d", base, path, constants.QueryCameraID, cameraID)
	}
	return model.WSEndpoints{
		Frames: url(constants.PathWSFrames),
		Sensor: url(constants.PathWSSensor),
		Count:  url(constants.PathWSCount),
	}
}
