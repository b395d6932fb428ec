package geodata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/paulmach/orb"
)

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags"`
	Geometry []overpassPoint   `json:"geometry"`
	Members  []overpassMember  `json:"members"`
}

type overpassMember struct {
	Type     string          `json:"type"`
	Role     string          `json:"role"`
	Geometry []overpassPoint `json:"geometry"`
}

type overpassPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

var (
	waterFilters = []string{`["natural"="water"]`, `["waterway"="riverbank"]`, `["natural"="bay"]`}
	parkFilters  = []string{`["leisure"="park"]`, `["landuse"="grass"]`}
)

// Streets fetches the drivable road network. An empty network is ErrNoStreets.
func (c *Client) Streets(ctx context.Context, center orb.Point, distance int) (*Graph, error) {
	query := c.query(center, distance, []string{`way["highway"]`})

	resp, err := c.interpreter(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetching streets: %w", err)
	}

	graph := &Graph{}
	for _, el := range resp.Elements {
		if el.Type != "way" || len(el.Geometry) < 2 {
			continue
		}
		graph.Edges = append(graph.Edges, Edge{
			Highway: Classify(el.Tags["highway"]),
			Line:    lineString(el.Geometry),
		})
	}

	if len(graph.Edges) == 0 {
		return nil, ErrNoStreets
	}
	return graph, nil
}

func (c *Client) Water(ctx context.Context, center orb.Point, distance int) (*Features, error) {
	return c.features(ctx, center, distance, waterFilters)
}

func (c *Client) Parks(ctx context.Context, center orb.Point, distance int) (*Features, error) {
	return c.features(ctx, center, distance, parkFilters)
}

func (c *Client) features(ctx context.Context, center orb.Point, distance int, filters []string) (*Features, error) {
	selectors := make([]string, 0, 2*len(filters))
	for _, f := range filters {
		selectors = append(selectors, "way"+f, "relation"+f)
	}

	resp, err := c.interpreter(ctx, c.query(center, distance, selectors))
	if err != nil {
		return nil, err
	}
	return polygons(resp.Elements), nil
}

// query builds an overpass QL query for everything matching selectors around center.
func (c *Client) query(center orb.Point, distance int, selectors []string) string {
	around := fmt.Sprintf("(around:%d,%f,%f)", distance, center.Lat(), center.Lon())

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];(", int(c.cfg.timeout.Seconds()))
	for _, s := range selectors {
		b.WriteString(s)
		b.WriteString(around)
		b.WriteString(";")
	}
	b.WriteString(");out geom;")
	return b.String()
}

func (c *Client) interpreter(ctx context.Context, query string) (*overpassResponse, error) {
	form := url.Values{}
	form.Set("data", query)

	req, err := retryablehttp.NewRequest(http.MethodPost, c.cfg.overpassURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp overpassResponse
	if err := c.getJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// polygons turns closed ways and the outer members of relations into polygons.
// Open ways cannot enclose an area and are skipped.
func polygons(elements []overpassElement) *Features {
	f := &Features{}
	for _, el := range elements {
		switch el.Type {
		case "way":
			if ring, ok := closedRing(el.Geometry); ok {
				f.Polygons = append(f.Polygons, orb.Polygon{ring})
			}
		case "relation":
			for _, m := range el.Members {
				if m.Type != "way" || (m.Role != "outer" && m.Role != "") {
					continue
				}
				if ring, ok := closedRing(m.Geometry); ok {
					f.Polygons = append(f.Polygons, orb.Polygon{ring})
				}
			}
		}
	}
	return f
}

func lineString(points []overpassPoint) orb.LineString {
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		ls = append(ls, orb.Point{p.Lon, p.Lat})
	}
	return ls
}

func closedRing(points []overpassPoint) (orb.Ring, bool) {
	if len(points) < 4 {
		return nil, false
	}
	first, last := points[0], points[len(points)-1]
	if first != last {
		return nil, false
	}
	return orb.Ring(lineString(points)), true
}
