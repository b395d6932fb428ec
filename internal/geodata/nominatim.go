package geodata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Query is the free form search string sent to the geocoder.
func (l Location) Query() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.City, l.State, l.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Geocode resolves a location into a point. The point is lon/lat ordered as orb expects.
func (c *Client) Geocode(ctx context.Context, loc Location) (orb.Point, error) {
	q := url.Values{}
	q.Set("q", loc.Query())
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := retryablehttp.NewRequest(http.MethodGet, strings.TrimRight(c.cfg.nominatimURL, "/")+"/search?"+q.Encode(), nil)
	if err != nil {
		return orb.Point{}, err
	}

	var places []nominatimPlace
	if err := c.getJSON(ctx, req, &places); err != nil {
		return orb.Point{}, err
	}
	if len(places) == 0 {
		return orb.Point{}, fmt.Errorf("%w: %s", ErrLocationNotFound, loc.Query())
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid longitude %q: %w", places[0].Lon, err)
	}

	zap.S().Named("geodata").Debugw("geocoded location", "query", loc.Query(), "lat", lat, "lon", lon, "display_name", places[0].DisplayName)

	return orb.Point{lon, lat}, nil
}
