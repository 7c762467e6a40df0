// Package units provides shared constants and validation for distance units
package units

// Unit constants
const (
	KM = "km"
	MI = "mi"
	M  = "m"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{KM, MI, M}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "km, mi, m"
}

// ConvertDistance converts a distance from kilometres to the target units.
// Geometry tables store distances in km.
func ConvertDistance(distanceKm float64, targetUnits string) float64 {
	switch targetUnits {
	case MI:
		return distanceKm * 0.621371 // km to miles
	case M:
		return distanceKm * 1000 // km to metres
	case KM:
		return distanceKm // no conversion needed
	default:
		return distanceKm // default to km if unknown unit
	}
}
