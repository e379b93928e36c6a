// File: internal/domain/notifications.go
package domain

import "time"

// SpotStatusNotification - Event được gửi đến client qua WebSocket khi trạng thái chỗ đỗ thay đổi
type SpotStatusNotification struct {
	SpotID        string     `json:"spot_id"`
	SectionID     string     `json:"section_id"`
	Status        SpotStatus `json:"status"`
	ReservationID int64      `json:"reservation_id,omitempty"`
	ChangedAt     time.Time  `json:"changed_at"`
}

type ScannerDirection string

const (
	ScannerEntry ScannerDirection = "entry"
	ScannerExit  ScannerDirection = "exit"
)

// ScannerEvent is what a gate-mounted QR scanner publishes to the scanner queue.
type ScannerEvent struct {
	ScannerID     string           `json:"scanner_id"`
	GateThingName string           `json:"gate_thing_name"`
	ScanType      ScannerDirection `json:"scan_type"`
	Payload       string           `json:"payload"`
	Timestamp     string           `json:"timestamp,omitempty"` // ISO 8601 UTC
}

// BarrierControlCommandPayload is published to gates/<thing>/barrier/command.
type BarrierControlCommandPayload struct {
	Command       string `json:"command"` // "open"
	RequestID     string `json:"request_id,omitempty"`
	ReservationID int64  `json:"reservation_id,omitempty"`
}
