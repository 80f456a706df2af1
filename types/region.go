package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

var ErrInvalidBound = errors.New("region bound must have min < max on both axes")

// Region is an immutable query area: a bounding box, the reference point the
// upstream treats as the user's location, and a zoom hint.
type Region struct {
	Bound orb.Bound `json:"bound"`
	Ref   orb.Point `json:"ref"`
	Zoom  float64   `json:"zoom"`
}

// NewRegion validates the bound and uses its centre as the reference point.
func NewRegion(b orb.Bound, zoom float64) (Region, error) {
	if !(b.Min.Lon() < b.Max.Lon() && b.Min.Lat() < b.Max.Lat()) {
		return Region{}, fmt.Errorf("%w: %v", ErrInvalidBound, b)
	}
	return Region{Bound: b, Ref: b.Center(), Zoom: zoom}, nil
}

// ShrinkAround builds the square of half-width halfWidth degrees centred on p.
func ShrinkAround(p orb.Point, halfWidth, zoom float64) Region {
	return Region{
		Bound: orb.Bound{
			Min: orb.Point{p.Lon() - halfWidth, p.Lat() - halfWidth},
			Max: orb.Point{p.Lon() + halfWidth, p.Lat() + halfWidth},
		},
		Ref:  p,
		Zoom: zoom,
	}
}

// WithZoom returns a copy of r at a different zoom.
func (r Region) WithZoom(zoom float64) Region {
	r.Zoom = zoom
	return r
}

// BBox returns [minLon, minLat, maxLon, maxLat].
func (r Region) BBox() [4]float64 {
	return [4]float64{r.Bound.Min.Lon(), r.Bound.Min.Lat(), r.Bound.Max.Lon(), r.Bound.Max.Lat()}
}

// Key identifies the region for checkpoints. Two regions with the same box
// and zoom share a key.
func (r Region) Key() string {
	b := r.BBox()
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f@%g", b[0], b[1], b[2], b[3], r.Zoom)
}

// Contains uses half-open bounds [min, max) so adjacent grid cells never
// both claim a point on their shared edge.
func (r Region) Contains(p orb.Point) bool {
	return p.Lon() >= r.Bound.Min.Lon() && p.Lon() < r.Bound.Max.Lon() &&
		p.Lat() >= r.Bound.Min.Lat() && p.Lat() < r.Bound.Max.Lat()
}

func (r Region) String() string { return r.Key() }

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox %q: want 4 comma separated values, got %d", s, len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if !(b.Min.Lon() < b.Max.Lon() && b.Min.Lat() < b.Max.Lat()) {
		return orb.Bound{}, fmt.Errorf("bbox %q: %w", s, ErrInvalidBound)
	}
	return b, nil
}
