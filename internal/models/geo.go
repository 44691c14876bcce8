package models

import "math"

// EarthRadiusMeters is the mean Earth radius used for distance math.
const EarthRadiusMeters = 6371008.8

// DistanceMeters returns the great-circle distance between two points given
// as longitude/latitude degrees.
func DistanceMeters(lng1, lat1, lng2, lat2 float64) float64 {
	const rad = math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}
