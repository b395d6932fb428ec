package service

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	api "github.com/maptoposter/poster-api/api/v1alpha1"
	"github.com/maptoposter/poster-api/internal/geodata"
	"github.com/maptoposter/poster-api/internal/jobs"
	"github.com/maptoposter/poster-api/internal/mapcache"
	"github.com/maptoposter/poster-api/pkg/metrics"
)

// Distance is the fetch radius of a request: an explicit distance wins over the size preset.
func Distance(req api.PosterRequest) int {
	if req.Distance != nil && *req.Distance > 0 {
		return *req.Distance
	}
	return api.PresetDistance[api.StringToSizePreset(string(req.Size))]
}

// reusable reports whether any cached distance of the location may serve the request.
func reusable(req api.PosterRequest) bool {
	return req.Distance == nil && api.StringToSizePreset(string(req.Size)) == api.SizeAuto
}

// mapData loads the map of the requested location from the cache, or fetches and caches it.
func (s *PosterService) mapData(ctx context.Context, jobID string, req api.PosterRequest) (*geodata.MapData, error) {
	logger := zap.S().Named("poster_service").With("job_id", jobID)
	distance := Distance(req)
	key := mapcache.NewKey(req.City, req.Country, distance)

	if entry, ok := s.cache.Load(key); ok {
		data, err := decodeEntry(entry)
		if err == nil {
			metrics.IncreaseCacheLookupMetric(metrics.CacheHit)
			logger.Debugw("map cache hit", "key", key)
			s.update(ctx, jobID, jobs.Update{}.WithProgress(progressFetched))
			return data, nil
		}
		logger.Warnw("ignoring undecodable cache entry", "key", key, "error", err)
	}

	if reusable(req) {
		if meta, ok := s.cache.FindByLocation(req.City, req.Country); ok {
			if entry, ok := s.cache.Load(mapcache.Key(meta.CacheKey)); ok {
				if data, err := decodeEntry(entry); err == nil {
					metrics.IncreaseCacheLookupMetric(metrics.CacheReuse)
					logger.Debugw("reusing cached map", "key", meta.CacheKey, "distance", meta.Distance)
					s.update(ctx, jobID, jobs.Update{}.WithProgress(progressFetched))
					return data, nil
				}
			}
		}
	}
	metrics.IncreaseCacheLookupMetric(metrics.CacheMiss)

	loc := geodata.Location{City: req.City, Country: req.Country}
	if req.State != nil {
		loc.State = *req.State
	}

	center, err := s.source.Geocode(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("geocoding %s: %w", loc.Query(), err)
	}
	s.update(ctx, jobID, jobs.Update{}.WithProgress(progressGeocoded))

	data, err := s.source.Fetch(ctx, center, distance)
	if err != nil {
		return nil, fmt.Errorf("fetching map data: %w", err)
	}
	s.update(ctx, jobID, jobs.Update{}.WithProgress(progressFetched))

	entry, err := encodeEntry(data, req.City, req.Country)
	if err == nil && s.cache.Save(key, entry) {
		logger.Debugw("map cached", "key", key)
	} else {
		metrics.IncreaseCacheLookupMetric(metrics.CacheSaveError)
		logger.Warnw("failed to cache map data", "key", key, "error", err)
	}

	return data, nil
}

func encodeEntry(data *geodata.MapData, city, country string) (*mapcache.Entry, error) {
	graph, err := geodata.EncodeGraph(data.Graph)
	if err != nil {
		return nil, err
	}
	water, err := geodata.EncodeFeatures(data.Water)
	if err != nil {
		return nil, err
	}
	parks, err := geodata.EncodeFeatures(data.Parks)
	if err != nil {
		return nil, err
	}

	return &mapcache.Entry{
		Graph:    graph,
		Water:    water,
		Parks:    parks,
		Coords:   mapcache.Coords{data.Center.Lat(), data.Center.Lon()},
		City:     city,
		Country:  country,
		Distance: data.Distance,
	}, nil
}

func decodeEntry(entry *mapcache.Entry) (*geodata.MapData, error) {
	graph, err := geodata.DecodeGraph(entry.Graph)
	if err != nil {
		return nil, err
	}
	water, err := geodata.DecodeFeatures(entry.Water)
	if err != nil {
		return nil, err
	}
	parks, err := geodata.DecodeFeatures(entry.Parks)
	if err != nil {
		return nil, err
	}

	return &geodata.MapData{
		Graph:    graph,
		Water:    water,
		Parks:    parks,
		Center:   orb.Point{entry.Coords.Lon(), entry.Coords.Lat()},
		Distance: entry.Distance,
	}, nil
}
