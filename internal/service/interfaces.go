package service

import (
	"context"
	"image"

	"github.com/paulmach/orb"

	"github.com/maptoposter/poster-api/internal/geodata"
	"github.com/maptoposter/poster-api/internal/jobs"
	"github.com/maptoposter/poster-api/internal/mapcache"
	"github.com/maptoposter/poster-api/internal/render"
	"github.com/maptoposter/poster-api/internal/themes"
)

// MapCache is the part of the map cache used by the poster service.
type MapCache interface {
	Load(key mapcache.Key) (*mapcache.Entry, bool)
	Save(key mapcache.Key, entry *mapcache.Entry) bool
	FindByLocation(city, country string) (*mapcache.Meta, bool)
}

// MapSource resolves locations and downloads their map features.
type MapSource interface {
	Geocode(ctx context.Context, loc geodata.Location) (orb.Point, error)
	Fetch(ctx context.Context, center orb.Point, distance int) (*geodata.MapData, error)
}

type ThemeCatalog interface {
	Get(id string) (*themes.Theme, error)
}

type Renderer interface {
	Render(data *geodata.MapData, theme *themes.Theme, labels render.Labels) (image.Image, error)
}

// Notifier is told about every job change.
type Notifier interface {
	Publish(ctx context.Context, job jobs.Job) error
}
