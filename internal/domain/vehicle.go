package domain

import "strings"

type VehicleType string

const (
	VehicleCar        VehicleType = "car"
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleBicycle    VehicleType = "bicycle"
	VehicleEBike      VehicleType = "e-bike"
)

type Vehicle struct {
	ID           int         `json:"id"`
	UserID       int         `json:"user_id"`
	Type         VehicleType `json:"type"`
	LicensePlate string      `json:"license_plate,omitempty"`
}

// RequiredSpotType maps a vehicle to the spot type it may park in.
// Bicycles and e-bikes share the "bike" spots; everything else must match exactly.
func (t VehicleType) RequiredSpotType() SpotType {
	switch VehicleType(strings.ToLower(string(t))) {
	case VehicleBicycle, VehicleEBike, "ebike", "bike":
		return SpotTypeBike
	default:
		return SpotType(strings.ToLower(string(t)))
	}
}

func (t VehicleType) Fits(spot SpotType) bool {
	return t.RequiredSpotType() == SpotType(strings.ToLower(string(spot)))
}
