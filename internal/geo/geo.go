// Package geo provides the spherical geometry primitives used to decide
// whether two antennas face each other: great-circle distance, forward
// azimuth (bearing), and coverage-cone membership.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// DefaultHalfBeamwidth is half the angular width of an antenna's coverage
// cone, in degrees. The default gives a 120° cone.
const DefaultHalfBeamwidth = 60.0

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// NormalizeAngle maps an angle in degrees onto [0,360).
func NormalizeAngle(deg float64) float64 {
	return math.Mod(math.Mod(deg, 360)+360, 360)
}

// Bearing returns the initial compass bearing, in degrees [0,360), of the
// great-circle path from (lat1,lon1) to (lat2,lon2). Inputs are decimal
// degrees.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dLon := radians(lon2 - lon1)

	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)

	return NormalizeAngle(degrees(math.Atan2(y, x)))
}

// GreatCircleDistance returns the haversine distance in kilometres between
// two points given in decimal degrees.
func GreatCircleDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// WithinCoverage reports whether bearing falls inside the coverage cone
// centred on azimuth with the given half-beamwidth, all in degrees. The
// interval is closed on both ends and wraps correctly through 0°/360°;
// a half-beamwidth of 180 accepts every bearing.
func WithinCoverage(bearing, azimuth, halfBeamwidth float64) bool {
	d := NormalizeAngle(bearing - azimuth)
	if d > 180 {
		d = 360 - d
	}
	return d <= halfBeamwidth
}
