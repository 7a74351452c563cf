package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"checkride/internal/types"
)

// OpenCage is the first-priority geocoding provider.
type OpenCage struct {
	apiKey string
	client *http.Client
}

func NewOpenCage(apiKey string, client *http.Client) *OpenCage {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenCage{apiKey: apiKey, client: client}
}

func (o *OpenCage) Name() string { return "opencage" }

type openCageResponse struct {
	Results []struct {
		Geometry struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"geometry"`
	} `json:"results"`
}

func (o *OpenCage) Resolve(ctx context.Context, address string) (types.Point, bool, error) {
	u := fmt.Sprintf(
		"https://api.opencagedata.com/geocode/v1/json?q=%s&key=%s&limit=1&countrycode=us",
		url.QueryEscape(address), url.QueryEscape(o.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return types.Point{}, false, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return types.Point{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Point{}, false, fmt.Errorf("opencage: unexpected status %d", resp.StatusCode)
	}

	var body openCageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return types.Point{}, false, err
	}
	if len(body.Results) == 0 {
		return types.Point{}, false, nil
	}
	g := body.Results[0].Geometry
	return types.Point{Lat: g.Lat, Lng: g.Lng}, true, nil
}
