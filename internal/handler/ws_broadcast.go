package handler

// BroadcastCalibrationEvent implements service.Broadcaster using the WebSocket hub.
func (h *Hub) BroadcastCalibrationEvent(calibrationID string, eventType string, data any) {
	h.Broadcast(WSEvent{
		Type:          eventType,
		CalibrationID: calibrationID,
		Data:          data,
	})
}
