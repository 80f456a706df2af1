package geocode

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"
)

type stubGeocoder struct {
	calls   int
	results []maps.GeocodingResult
}

func (s *stubGeocoder) Geocode(context.Context, *maps.GeocodingRequest) ([]maps.GeocodingResult, error) {
	s.calls++
	return s.results, nil
}

func TestResolvePlaceUsesBoundsAndCaches(t *testing.T) {
	g := &stubGeocoder{results: []maps.GeocodingResult{{Geometry: maps.AddressGeometry{
		Bounds: maps.LatLngBounds{
			NorthEast: maps.LatLng{Lat: 43.7, Lng: 39.9},
			SouthWest: maps.LatLng{Lat: 43.4, Lng: 39.6},
		},
	}}}}
	r := NewResolver(g, 8, 0)

	region, err := r.ResolvePlace(context.Background(), "Sochi")
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{39.6, 43.4}, Max: orb.Point{39.9, 43.7}}, region.Bound)

	_, err = r.ResolvePlace(context.Background(), " sochi ")
	require.NoError(t, err)
	assert.Equal(t, 1, g.calls)
}

func TestResolvePlaceFallsBackToViewport(t *testing.T) {
	g := &stubGeocoder{results: []maps.GeocodingResult{{Geometry: maps.AddressGeometry{
		Viewport: maps.LatLngBounds{
			NorthEast: maps.LatLng{Lat: 2, Lng: 2},
			SouthWest: maps.LatLng{Lat: 1, Lng: 1},
		},
	}}}}
	region, err := NewResolver(g, 8, 0).ResolvePlace(context.Background(), "somewhere")
	require.NoError(t, err)
	assert.Equal(t, orb.Point{1.5, 1.5}, region.Ref)
}

func TestResolvePlaceNoResults(t *testing.T) {
	_, err := NewResolver(&stubGeocoder{}, 8, 0).ResolvePlace(context.Background(), "nowhere")
	assert.ErrorIs(t, err, ErrNoResults)
}

const cities = `{"type": "FeatureCollection", "features": [
  {"type": "Feature", "id": "polygon-184332", "properties": {"id": "polygon-184332", "name": "Sochi"},
   "geometry": {"type": "Polygon", "coordinates": [[[39.6, 43.4], [39.9, 43.4], [39.9, 43.7], [39.6, 43.4]]]}},
  {"type": "Feature", "properties": {"id": 7},
   "geometry": {"type": "Polygon", "coordinates": [[[1, 1], [2, 1], [2, 2], [1, 1]]]}}
]}`

func TestLoadCity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.geojson")
	require.NoError(t, os.WriteFile(path, []byte(cities), 0o644))

	region, err := LoadCity(path, "polygon-184332")
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{39.6, 43.4}, Max: orb.Point{39.9, 43.7}}, region.Bound)

	region, err = LoadCity(path, "7")
	require.NoError(t, err)
	assert.Equal(t, orb.Point{1.5, 1.5}, region.Ref)

	_, err = LoadCity(path, "polygon-1")
	assert.ErrorIs(t, err, ErrCityNotFound)
}
