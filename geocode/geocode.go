package geocode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go-scooterscan/types"

	"github.com/bluele/gcache"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"googlemaps.github.io/maps"
)

var (
	ErrCityNotFound = errors.New("city not found")
	ErrNoResults    = errors.New("no geocoding results")
)

// mapsClient is a singleton maps client instance.
var (
	mapsClient *maps.Client
	clientOnce sync.Once
	clientErr  error
)

// InitMapsClient initializes and returns a singleton Google Maps client.
func InitMapsClient() (*maps.Client, error) {
	clientOnce.Do(func() {
		apiKey := os.Getenv("MAPS_CREDENTIALS")
		if apiKey == "" {
			clientErr = fmt.Errorf("MAPS_CREDENTIALS environment variable not set")
			return
		}
		mapsClient, clientErr = maps.NewClient(maps.WithAPIKey(apiKey))
	})
	return mapsClient, clientErr
}

// Geocoder is the part of *maps.Client the resolver uses.
type Geocoder interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// Resolver turns place names into target regions, caching answers.
type Resolver struct {
	client Geocoder
	cache  gcache.Cache
	ttl    time.Duration
}

func NewResolver(client Geocoder, size int, ttl time.Duration) *Resolver {
	if size < 1 {
		size = 128
	}
	return &Resolver{client: client, cache: gcache.New(size).LRU().Build(), ttl: ttl}
}

// DefaultResolver wraps the singleton maps client.
func DefaultResolver() (*Resolver, error) {
	client, err := InitMapsClient()
	if err != nil {
		return nil, err
	}
	return NewResolver(client, 128, 24*time.Hour), nil
}

// ResolvePlace geocodes name and returns its bounds, or its viewport when
// the result has no bounds, as a region.
func (r *Resolver) ResolvePlace(ctx context.Context, name string) (types.Region, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return types.Region{}, errors.New("empty place name")
	}
	if v, err := r.cache.Get(key); err == nil {
		return v.(types.Region), nil
	}

	results, err := r.client.Geocode(ctx, &maps.GeocodingRequest{Address: name})
	if err != nil {
		return types.Region{}, fmt.Errorf("geocode %q: %w", name, err)
	}
	if len(results) == 0 {
		return types.Region{}, fmt.Errorf("%w for %q", ErrNoResults, name)
	}

	g := results[0].Geometry
	box := g.Bounds
	if box.NorthEast == (maps.LatLng{}) && box.SouthWest == (maps.LatLng{}) {
		box = g.Viewport
	}
	region, err := types.NewRegion(orb.Bound{
		Min: orb.Point{box.SouthWest.Lng, box.SouthWest.Lat},
		Max: orb.Point{box.NorthEast.Lng, box.NorthEast.Lat},
	}, 0)
	if err != nil {
		return types.Region{}, fmt.Errorf("geocode %q: %w", name, err)
	}

	if r.ttl > 0 {
		_ = r.cache.SetWithExpire(key, region, r.ttl)
	} else {
		_ = r.cache.Set(key, region)
	}
	return region, nil
}

// LoadCity finds the feature with the given id in a cities GeoJSON file and
// returns the bound of its geometry.
func LoadCity(path, id string) (types.Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Region{}, fmt.Errorf("read cities file: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return types.Region{}, fmt.Errorf("parse cities file %s: %w", path, err)
	}

	for _, f := range fc.Features {
		if featureID(f) != id || f.Geometry == nil {
			continue
		}
		region, err := types.NewRegion(f.Geometry.Bound(), 0)
		if err != nil {
			return types.Region{}, fmt.Errorf("city %s: %w", id, err)
		}
		return region, nil
	}
	return types.Region{}, fmt.Errorf("%w: %s in %s", ErrCityNotFound, id, path)
}

func featureID(f *geojson.Feature) string {
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	if v, ok := f.Properties["id"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}
