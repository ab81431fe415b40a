// Package geo computes great-circle distances between WGS84 points.
package geo

import "math"

const (
	// EarthRadiusKm is the mean Earth radius used by DistanceKm.
	EarthRadiusKm = 6371.0

	// AverageSpeedKmh is the assumed road speed for travel estimates.
	AverageSpeedKmh = 40.0
)

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}

func radiansToDegrees(r float64) float64 {
	return r * 180 / math.Pi
}

// DistanceKm returns the haversine distance in kilometres.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := degreesToRadians(lat1)
	phi2 := degreesToRadians(lat2)
	dPhi := degreesToRadians(lat2 - lat1)
	dLambda := degreesToRadians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// EstimatedTravelMinutes converts a distance into whole minutes at AverageSpeedKmh.
func EstimatedTravelMinutes(distanceKm float64) int {
	return int(math.Round(distanceKm / AverageSpeedKmh * 60))
}

// RoundKm rounds a distance to two decimals for presentation.
func RoundKm(d float64) float64 {
	return math.Round(d*100) / 100
}

// ValidCoordinates reports whether lat/lon are finite and within WGS84 ranges.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Box is a lat/lon rectangle in degrees.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// BoundingBoxAround returns a rectangle containing every point within radiusKm
// of (lat, lon). ok is false when no simple rectangle exists: the circle covers
// a pole or crosses the antimeridian. Callers must still filter by DistanceKm.
func BoundingBoxAround(lat, lon, radiusKm float64) (Box, bool) {
	if radiusKm <= 0 || !ValidCoordinates(lat, lon) {
		return Box{}, false
	}

	angular := radiusKm / EarthRadiusKm
	phi := degreesToRadians(lat)
	minPhi := phi - angular
	maxPhi := phi + angular
	if minPhi <= -math.Pi/2 || maxPhi >= math.Pi/2 {
		return Box{}, false
	}

	dLambda := math.Asin(math.Sin(angular) / math.Cos(phi))
	lambda := degreesToRadians(lon)
	minLambda := lambda - dLambda
	maxLambda := lambda + dLambda
	if minLambda < -math.Pi || maxLambda > math.Pi {
		return Box{}, false
	}

	return Box{
		MinLat: radiansToDegrees(minPhi),
		MaxLat: radiansToDegrees(maxPhi),
		MinLon: radiansToDegrees(minLambda),
		MaxLon: radiansToDegrees(maxLambda),
	}, true
}

// Contains reports whether the point lies inside the box.
func (b Box) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}
