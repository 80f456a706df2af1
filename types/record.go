package types

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Kind tags what a discovered record stands for.
type Kind int

const (
	// Individual is a single physical vehicle or parking spot.
	Individual Kind = iota + 1
	// Aggregate is a cluster summary carrying a reported member count.
	Aggregate
	// EmptyAggregate is a cluster placeholder with nothing resolvable at the current zoom.
	EmptyAggregate
)

func (k Kind) String() string {
	switch k {
	case Individual:
		return "individual"
	case Aggregate:
		return "aggregate"
	case EmptyAggregate:
		return "empty_aggregate"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "individual":
		return Individual, nil
	case "aggregate":
		return Aggregate, nil
	case "empty_aggregate":
		return EmptyAggregate, nil
	}
	return 0, fmt.Errorf("unknown record kind %q", s)
}

var (
	ErrMissingID    = errors.New("record id is empty")
	ErrInvalidPoint = errors.New("record point is not a valid lon/lat")
)

// Record is one discovered entity. Build it with NewIndividual, NewAggregate
// or NewEmptyAggregate so the id/point invariants hold.
type Record struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind"`
	Point       orb.Point      `json:"point"`
	MemberCount int            `json:"memberCount,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

func NewIndividual(id string, p orb.Point, props map[string]any) (Record, error) {
	return newRecord(id, Individual, p, 0, props)
}

func NewAggregate(id string, p orb.Point, memberCount int, props map[string]any) (Record, error) {
	if memberCount < 0 {
		memberCount = 0
	}
	return newRecord(id, Aggregate, p, memberCount, props)
}

func NewEmptyAggregate(id string, p orb.Point, props map[string]any) (Record, error) {
	return newRecord(id, EmptyAggregate, p, 0, props)
}

func newRecord(id string, kind Kind, p orb.Point, count int, props map[string]any) (Record, error) {
	if id == "" {
		return Record{}, ErrMissingID
	}
	if !ValidPoint(p) {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidPoint, p)
	}
	return Record{ID: id, Kind: kind, Point: p, MemberCount: count, Properties: props}, nil
}

// ValidPoint reports whether p is a finite [lon, lat] inside WGS84 range.
func ValidPoint(p orb.Point) bool {
	lon, lat := p.Lon(), p.Lat()
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
