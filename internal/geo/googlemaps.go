package geo

import (
	"context"

	"googlemaps.github.io/maps"

	"checkride/internal/types"
)

// GoogleMaps is the second-priority geocoding provider, backed by the
// official Maps client.
type GoogleMaps struct {
	client *maps.Client
}

func NewGoogleMaps(apiKey string) (*GoogleMaps, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GoogleMaps{client: client}, nil
}

func (g *GoogleMaps) Name() string { return "google" }

func (g *GoogleMaps) Resolve(ctx context.Context, address string) (types.Point, bool, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address: address,
		Region:  "us",
	})
	if err != nil {
		return types.Point{}, false, err
	}
	if len(results) == 0 {
		return types.Point{}, false, nil
	}
	loc := results[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, true, nil
}
