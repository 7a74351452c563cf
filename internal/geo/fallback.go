package geo

import (
	"hash/fnv"
	"math/rand"
	"strings"

	"checkride/internal/types"
)

// stateCentroids is scanned in fixed order so that addresses mentioning
// several state tokens resolve the same way every time.
var stateCentroids = []struct {
	token string
	point types.Point
}{
	{"texas", types.Point{Lat: 31.9686, Lng: -99.9018}},
	{"tx", types.Point{Lat: 31.9686, Lng: -99.9018}},
	{"california", types.Point{Lat: 36.7783, Lng: -119.4179}},
	{"ca", types.Point{Lat: 36.7783, Lng: -119.4179}},
	{"new york", types.Point{Lat: 42.1657, Lng: -74.9481}},
	{"ny", types.Point{Lat: 42.1657, Lng: -74.9481}},
	{"florida", types.Point{Lat: 27.7663, Lng: -81.6868}},
	{"fl", types.Point{Lat: 27.7663, Lng: -81.6868}},
	{"illinois", types.Point{Lat: 40.3363, Lng: -89.0022}},
	{"il", types.Point{Lat: 40.3363, Lng: -89.0022}},
	{"pennsylvania", types.Point{Lat: 41.2033, Lng: -77.1945}},
	{"pa", types.Point{Lat: 41.2033, Lng: -77.1945}},
}

// usCenter anchors addresses with no recognizable state token.
var usCenter = types.Point{Lat: 39.8283, Lng: -98.5795}

// FallbackCoordinates returns a low-precision approximation for an address.
// The jitter is seeded from the address itself so the same input always
// yields the same coordinate.
func FallbackCoordinates(address string) types.Point {
	lower := NormalizeAddress(address)
	rng := rand.New(rand.NewSource(int64(addressSeed(lower))))

	for _, sc := range stateCentroids {
		if strings.Contains(lower, sc.token) {
			return types.Point{
				Lat: sc.point.Lat + (rng.Float64()-0.5)*2, // ±1 degree
				Lng: sc.point.Lng + (rng.Float64()-0.5)*2,
			}
		}
	}
	return types.Point{
		Lat: usCenter.Lat + (rng.Float64()-0.5)*10,
		Lng: usCenter.Lng + (rng.Float64()-0.5)*20,
	}
}

func addressSeed(normalized string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(normalized))
	return h.Sum64()
}
