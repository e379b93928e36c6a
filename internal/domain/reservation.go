package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationCompleted || s == ReservationCancelled
}

// CanTransition encodes reserved -> active -> completed and reserved -> cancelled.
func (s ReservationStatus) CanTransition(to ReservationStatus) bool {
	switch s {
	case ReservationReserved:
		return to == ReservationActive || to == ReservationCancelled
	case ReservationActive:
		return to == ReservationCompleted
	default:
		return false
	}
}

type Reservation struct {
	ID           int64             `json:"id"`
	UserID       int               `json:"user_id"`
	VehicleID    int               `json:"vehicle_id"`
	SpotID       string            `json:"spot_id"`
	SectionID    string            `json:"section_id"`
	CreatedAt    time.Time         `json:"time_stamp"`
	StartTime    null.Time         `json:"start_time"`
	EndTime      null.Time         `json:"end_time"`
	Status       ReservationStatus `json:"status"`
	QRCredential string            `json:"-"` // Không bao giờ trả về credential ngoài payload QR
}

type BookSpotDTO struct {
	VehicleID int    `json:"vehicleId" binding:"required,min=1"`
	SpotID    string `json:"spotId" binding:"required"`
	AreaID    string `json:"areaId" binding:"required"`
}

type ScanDTO struct {
	QRPayload string `json:"qrPayload" binding:"required"`
}

type BookingResponseDTO struct {
	ReservationID int64             `json:"reservationId"`
	SpotID        string            `json:"spotId"`
	AreaID        string            `json:"areaId"`
	Status        ReservationStatus `json:"status"`
	QRPayload     string            `json:"qrPayload"`
	QRImage       string            `json:"qrImage,omitempty"` // data:image/png;base64,...
	CreatedAt     time.Time         `json:"createdAt"`
}

type SessionStartedDTO struct {
	ReservationID int64             `json:"reservationId"`
	SpotID        string            `json:"spotId"`
	VehicleID     int               `json:"vehicleId"`
	Status        ReservationStatus `json:"status"`
	StartTime     time.Time         `json:"startTime"`
}

type SessionEndedDTO struct {
	ReservationID    int64             `json:"reservationId"`
	SpotID           string            `json:"spotId"`
	Status           ReservationStatus `json:"status"`
	StartTime        time.Time         `json:"startTime"`
	EndTime          time.Time         `json:"endTime"`
	DurationMinutes  int64             `json:"durationMinutes"`
	ChargeHours      float64           `json:"chargeHours"`
	HoursDeducted    float64           `json:"hoursDeducted"`
	PenaltyHours     float64           `json:"penaltyHours"`
	SubscriptionID   *int64            `json:"subscriptionId,omitempty"`
	RemainingBalance *float64          `json:"remainingBalance,omitempty"`
	Message          string            `json:"message,omitempty"`
}

// SessionStatusDTO is the read-only projection served by the status endpoints.
type SessionStatusDTO struct {
	ReservationID  int64             `json:"reservationId"`
	SpotID         string            `json:"spotId"`
	AreaID         string            `json:"areaId"`
	Status         ReservationStatus `json:"status"`
	CreatedAt      time.Time         `json:"createdAt"`
	StartTime      null.Time         `json:"startTime"`
	EndTime        null.Time         `json:"endTime"`
	ElapsedMinutes int64             `json:"elapsedMinutes"`
	ChargeHoursNow float64           `json:"chargeHoursSoFar"`
}
