package geodata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/maptoposter/poster-api/pkg/log"
)

const (
	defaultOverpassURL  = "https://overpass-api.de/api/interpreter"
	defaultNominatimURL = "https://nominatim.openstreetmap.org"
	defaultUserAgent    = "maptoposter-api/0.1"
	// overpass answers can be large for metro sized areas
	maxResponseBytes = 256 << 20
)

type ClientOpts func(c *clientConfig)

type clientConfig struct {
	overpassURL  string
	nominatimURL string
	userAgent    string
	timeout      time.Duration
	retryMax     int
	httpClient   *http.Client
}

func WithOverpassURL(url string) ClientOpts {
	return func(c *clientConfig) {
		c.overpassURL = url
	}
}

func WithNominatimURL(url string) ClientOpts {
	return func(c *clientConfig) {
		c.nominatimURL = url
	}
}

func WithUserAgent(userAgent string) ClientOpts {
	return func(c *clientConfig) {
		c.userAgent = userAgent
	}
}

func WithTimeout(timeout time.Duration) ClientOpts {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

func WithRetryMax(retryMax int) ClientOpts {
	return func(c *clientConfig) {
		c.retryMax = retryMax
	}
}

// WithHTTPClient sets the underlying transport client, used by tests.
func WithHTTPClient(client *http.Client) ClientOpts {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// Client talks to Nominatim for geocoding and to the Overpass API for map features.
type Client struct {
	cfg  *clientConfig
	http *retryablehttp.Client
}

func NewClient(opts ...ClientOpts) *Client {
	cfg := &clientConfig{
		overpassURL:  defaultOverpassURL,
		nominatimURL: defaultNominatimURL,
		userAgent:    defaultUserAgent,
		timeout:      180 * time.Second,
		retryMax:     3,
	}
	for _, o := range opts {
		o(cfg)
	}

	rc := retryablehttp.NewClient()
	if cfg.httpClient != nil {
		rc.HTTPClient = cfg.httpClient
	}
	rc.HTTPClient.Timeout = cfg.timeout
	rc.RetryMax = cfg.retryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = log.NewLeveledLogger("geodata_http")

	return &Client{cfg: cfg, http: rc}
}

// Fetch downloads streets, water and parks within distance meters of center. Streets are
// required; water and parks failures are logged and leave the features nil.
func (c *Client) Fetch(ctx context.Context, center orb.Point, distance int) (*MapData, error) {
	graph, err := c.Streets(ctx, center, distance)
	if err != nil {
		return nil, err
	}

	data := &MapData{Graph: graph, Center: center, Distance: distance}

	data.Water, err = c.Water(ctx, center, distance)
	if err != nil {
		zap.S().Named("geodata").Warnw("failed to fetch water features", "error", err)
	}

	data.Parks, err = c.Parks(ctx, center, distance)
	if err != nil {
		zap.S().Named("geodata").Warnw("failed to fetch park features", "error", err)
	}

	return data, nil
}

func (c *Client) getJSON(ctx context.Context, req *retryablehttp.Request, into any) error {
	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", c.cfg.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "requesting %s", req.URL.Host)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s answered %d: %s", req.URL.Host, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(into); err != nil {
		return errors.Wrapf(err, "decoding %s response", req.URL.Host)
	}
	return nil
}
