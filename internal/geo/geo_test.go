package geo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceKm_KnownPairs(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		delta                  float64
	}{
		{"same point", 12.97, 77.59, 12.97, 77.59, 0, 1e-9},
		{"one degree of latitude", 0, 0, 1, 0, 111.19, 0.01},
		{"bangalore to chennai", 12.9716, 77.5946, 13.0827, 80.2707, 290.2, 1.0},
		{"london to paris", 51.5074, -0.1278, 48.8566, 2.3522, 343.5, 1.0},
		{"antipodes", 0, 0, 0, 180, math.Pi * EarthRadiusKm, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DistanceKm(tt.lat1, tt.lon1, tt.lat2, tt.lon2), tt.delta)
		})
	}
}

func TestDistanceKm_SymmetricAndZero(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		lat1 := rng.Float64()*180 - 90
		lon1 := rng.Float64()*360 - 180
		lat2 := rng.Float64()*180 - 90
		lon2 := rng.Float64()*360 - 180

		ab := DistanceKm(lat1, lon1, lat2, lon2)
		ba := DistanceKm(lat2, lon2, lat1, lon1)
		require.InDelta(t, ab, ba, 1e-9)
		require.GreaterOrEqual(t, ab, 0.0)
		require.Equal(t, 0.0, DistanceKm(lat1, lon1, lat1, lon1))
	}
}

func TestEstimatedTravelMinutes(t *testing.T) {
	assert.Equal(t, 0, EstimatedTravelMinutes(0))
	assert.Equal(t, 15, EstimatedTravelMinutes(10))
	assert.Equal(t, 60, EstimatedTravelMinutes(40))
	assert.Equal(t, 23, EstimatedTravelMinutes(15.2))
}

func TestRoundKm(t *testing.T) {
	assert.Equal(t, 1.23, RoundKm(1.2345))
	assert.Equal(t, 1.24, RoundKm(1.235001))
	assert.Equal(t, 0.0, RoundKm(0.001))
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(0, 0))
	assert.True(t, ValidCoordinates(-90, 180))
	assert.False(t, ValidCoordinates(90.0001, 0))
	assert.False(t, ValidCoordinates(0, -180.5))
	assert.False(t, ValidCoordinates(math.NaN(), 0))
	assert.False(t, ValidCoordinates(0, math.Inf(1)))
}

func TestBoundingBoxAround(t *testing.T) {
	t.Run("contains every point within radius", func(t *testing.T) {
		lat, lon, radius := 12.9716, 77.5946, 25.0
		box, ok := BoundingBoxAround(lat, lon, radius)
		require.True(t, ok)

		rng := rand.New(rand.NewSource(7))
		for i := 0; i < 2000; i++ {
			pLat := lat + (rng.Float64()*2-1)*0.5
			pLon := lon + (rng.Float64()*2-1)*0.5
			if DistanceKm(lat, lon, pLat, pLon) <= radius {
				require.True(t, box.Contains(pLat, pLon), "point %f,%f within radius but outside box", pLat, pLon)
			}
		}
	})

	t.Run("near pole", func(t *testing.T) {
		_, ok := BoundingBoxAround(89.9, 0, 50)
		assert.False(t, ok)
	})

	t.Run("across antimeridian", func(t *testing.T) {
		_, ok := BoundingBoxAround(0, 179.9, 50)
		assert.False(t, ok)
	})

	t.Run("non-positive radius", func(t *testing.T) {
		_, ok := BoundingBoxAround(0, 0, 0)
		assert.False(t, ok)
	})
}
