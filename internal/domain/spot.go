package domain

import "time"

type SpotStatus string

const (
	SpotAvailable SpotStatus = "available"
	SpotReserved  SpotStatus = "reserved"
	SpotOccupied  SpotStatus = "occupied"
)

type SpotType string

const (
	SpotTypeCar        SpotType = "car"
	SpotTypeMotorcycle SpotType = "motorcycle"
	SpotTypeBike       SpotType = "bike"
)

type Spot struct {
	ID        string     `json:"id"` // Ví dụ: "S101"
	SectionID string     `json:"section_id"`
	Type      SpotType   `json:"type"`
	Status    SpotStatus `json:"status"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type SpotFilterDTO struct {
	SectionID *string `form:"sectionId"`
	Type      *string `form:"type"`
	Status    *string `form:"status"`
}

// SectionCapacity counts spots of one section by status.
type SectionCapacity struct {
	SectionID string `json:"section_id"`
	Total     int    `json:"total"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
	Occupied  int    `json:"occupied"`
}
