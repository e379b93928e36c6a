package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type ScanType string

const (
	ScanStart ScanType = "start"
	ScanEnd   ScanType = "end"
)

// ScanRecord is one append-only row of qr_scan_tracking.
type ScanRecord struct {
	ID            int64             `json:"id"`
	ReservationID int64             `json:"reservation_id"`
	ActorID       string            `json:"actor_id"`
	ScanType      ScanType          `json:"scan_type"`
	ScanTimestamp time.Time         `json:"scan_timestamp"`
	StatusAtScan  ReservationStatus `json:"status_at_scan"`
	SpotID        string            `json:"spot_id"`
	VehicleID     null.Int          `json:"vehicle_id"`
}

// ActivityLog is the fire-and-forget audit trail written after each committed operation.
type ActivityLog struct {
	ID            int64          `json:"id"`
	UserID        int            `json:"user_id"`
	Action        string         `json:"action"`
	ReservationID null.Int       `json:"reservation_id"`
	Details       map[string]any `json:"details,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
