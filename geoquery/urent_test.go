package geoquery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"go-scooterscan/types"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const transportsResponse = `{
  "data": {
    "transports": [
      {"id": 501, "latitude": 43.58, "longitude": 39.72, "number": "S-501", "type": "SCOOTER", "battery": 81},
      {"id": 502, "latitude": 43.59},
      {"latitude": 43.60, "longitude": 39.74}
    ],
    "parkingList": [
      {"id": 501, "latitude": 43.57, "longitude": 39.71, "name": "Riviera", "capacity": 12}
    ]
  }
}`

func TestDecodeUrentConvertsCoordinates(t *testing.T) {
	res, err := DecodeUrent([]byte(transportsResponse))
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	vehicle, parking := res.Records[0], res.Records[1]
	assert.Equal(t, "vehicle/501", vehicle.ID)
	assert.Equal(t, orb.Point{39.72, 43.58}, vehicle.Point)
	assert.Equal(t, "SCOOTER", vehicle.Properties["vehicleType"])
	assert.Equal(t, "vehicle", vehicle.Properties["category"])

	assert.Equal(t, "parking/501", parking.ID)
	assert.Equal(t, types.Individual, parking.Kind)
	assert.Equal(t, "Riviera", parking.Properties["name"])

	assert.Equal(t, []orb.Point{{39.74, 43.60}}, res.Points)
}

func TestDecodeUrentWithoutData(t *testing.T) {
	_, err := DecodeUrent([]byte(`{"errors": ["nope"]}`))
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestUrentQueryUsesRegionCentre(t *testing.T) {
	region, err := types.NewRegion(orb.Bound{Min: orb.Point{39.6, 43.4}, Max: orb.Point{39.9, 43.7}}, 0)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, urentTransportPath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, q.Get("latitude"), q.Get("startLatitude"))
		lat, err := strconv.ParseFloat(q.Get("latitude"), 64)
		assert.NoError(t, err)
		assert.InDelta(t, 43.55, lat, 1e-9)
		assert.Equal(t, strconv.Itoa(RadiusMeters(region)), q.Get("radius"))
		_, _ = w.Write([]byte(transportsResponse))
	}))
	defer srv.Close()

	res, err := NewUrent(srv.URL, "secret").Query(context.Background(), region)
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
}

func TestUrentForbiddenIsAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	region, err := types.NewRegion(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, 0)
	require.NoError(t, err)

	_, err = NewUrent(srv.URL, "stale").Query(context.Background(), region)
	assert.True(t, errors.Is(err, ErrAuthExpired))
}

func TestRadiusMetersCoversBox(t *testing.T) {
	region, err := types.NewRegion(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{0.1, 0.1}}, 0)
	require.NoError(t, err)
	// half of a ~15.7 km diagonal at the equator
	assert.InDelta(t, 7872, RadiusMeters(region), 15)
}
