package mapcache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Coords is a [lat, lon] pair, the order used in meta.json.
type Coords [2]float64

func (c Coords) Lat() float64 { return c[0] }
func (c Coords) Lon() float64 { return c[1] }

// Meta is the content of meta.json.
type Meta struct {
	City     string    `json:"city"`
	Country  string    `json:"country"`
	Distance int       `json:"distance"`
	Coords   Coords    `json:"coords"`
	CachedAt Timestamp `json:"cached_at"`
	// CacheKey is only filled by scans, it is the entry's directory name.
	CacheKey string `json:"cache_key,omitempty"`
}

// Entry is a complete cached location. Water and Parks are nil when they were not cached.
type Entry struct {
	Graph    []byte
	Water    []byte
	Parks    []byte
	Coords   Coords
	City     string
	Country  string
	Distance int
	CachedAt time.Time
}

// timestampLayouts accepts RFC 3339 and zone-less ISO-8601 timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Timestamp is an ISO-8601 time. Values without a zone are read in local time.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid cached_at timestamp %q", s)
}
