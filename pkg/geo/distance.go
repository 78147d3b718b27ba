// Package geo provides the great-circle distance primitive used by the
// presence engine. Inputs are decimal degrees; NaN propagates.
package geo

import "math"

// earthRadiusMeters is the mean Earth radius.
const earthRadiusMeters = 6371000.0

// DistanceMeters returns the haversine great-circle distance in meters
// between two (lat, lon) points given in decimal degrees.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
