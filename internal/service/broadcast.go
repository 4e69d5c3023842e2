package service

// Calibration event types.
const (
	EventAttempt    = "attempt"
	EventCalibrated = "calibrated"
	EventFailed     = "failed"
)

// Broadcaster sends real-time events to connected clients.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	BroadcastCalibrationEvent(calibrationID string, eventType string, data any)
}

// NoopBroadcaster is a no-op implementation for testing or when WS is disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastCalibrationEvent(string, string, any) {}

// AttemptEvent is the payload of an attempt event.
type AttemptEvent struct {
	Strength int    `json:"strength"`
	Flawless bool   `json:"flawless"`
	Winner   string `json:"winner"`
	Rounds   int    `json:"rounds"`
	Score    int    `json:"score"`
	Losses   int    `json:"losses"`
}
