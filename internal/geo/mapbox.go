package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"checkride/internal/types"
)

// Mapbox is the last live geocoding provider in the chain.
type Mapbox struct {
	accessToken string
	client      *http.Client
}

func NewMapbox(accessToken string, client *http.Client) *Mapbox {
	if client == nil {
		client = http.DefaultClient
	}
	return &Mapbox{accessToken: accessToken, client: client}
}

func (m *Mapbox) Name() string { return "mapbox" }

type mapboxResponse struct {
	Features []struct {
		// Center is [lng, lat].
		Center []float64 `json:"center"`
	} `json:"features"`
}

func (m *Mapbox) Resolve(ctx context.Context, address string) (types.Point, bool, error) {
	u := fmt.Sprintf(
		"https://api.mapbox.com/geocoding/v5/mapbox.places/%s.json?access_token=%s&country=us&limit=1",
		url.PathEscape(address), url.QueryEscape(m.accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return types.Point{}, false, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return types.Point{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Point{}, false, fmt.Errorf("mapbox: unexpected status %d", resp.StatusCode)
	}

	var body mapboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return types.Point{}, false, err
	}
	if len(body.Features) == 0 || len(body.Features[0].Center) < 2 {
		return types.Point{}, false, nil
	}
	c := body.Features[0].Center
	return types.Point{Lat: c[1], Lng: c[0]}, true, nil
}
