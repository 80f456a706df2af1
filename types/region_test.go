package types

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegionRejectsDegenerateBounds(t *testing.T) {
	_, err := NewRegion(orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{1, 2}}, 12)
	assert.ErrorIs(t, err, ErrInvalidBound)

	r, err := NewRegion(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2, 4}}, 12)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{1, 2}, r.Ref)
}

func TestRegionContainsIsHalfOpen(t *testing.T) {
	r, err := NewRegion(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, 0)
	require.NoError(t, err)

	assert.True(t, r.Contains(orb.Point{0, 0}))
	assert.True(t, r.Contains(orb.Point{0.999, 0.5}))
	assert.False(t, r.Contains(orb.Point{1, 0.5}))
	assert.False(t, r.Contains(orb.Point{0.5, 1}))
}

func TestShrinkAround(t *testing.T) {
	r := ShrinkAround(orb.Point{37.6, 55.7}, 0.005, 19)
	assert.InDelta(t, 37.595, r.Bound.Min.Lon(), 1e-12)
	assert.InDelta(t, 55.705, r.Bound.Max.Lat(), 1e-12)
	assert.Equal(t, orb.Point{37.6, 55.7}, r.Ref)
	assert.Equal(t, 19.0, r.Zoom)
}

func TestRegionKeyDependsOnZoom(t *testing.T) {
	r, err := NewRegion(orb.Bound{Min: orb.Point{37.1, 55.2}, Max: orb.Point{37.3, 55.4}}, 17)
	require.NoError(t, err)
	assert.Equal(t, "37.100000,55.200000,37.300000,55.400000@17", r.Key())
	assert.NotEqual(t, r.Key(), r.WithZoom(19).Key())
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("37.3, 55.5,37.9,55.95")
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{37.3, 55.5}, Max: orb.Point{37.9, 55.95}}, b)

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "2,2,1,1"} {
		_, err := ParseBBox(bad)
		assert.Error(t, err, bad)
	}
}

func TestRecordConstructorsEnforceInvariants(t *testing.T) {
	_, err := NewIndividual("", orb.Point{1, 1}, nil)
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = NewIndividual("a", orb.Point{math.NaN(), 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidPoint)

	_, err = NewEmptyAggregate("e", orb.Point{10, 91}, nil)
	assert.ErrorIs(t, err, ErrInvalidPoint)

	agg, err := NewAggregate("c", orb.Point{1, 1}, -3, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, agg.MemberCount)
	assert.Equal(t, Aggregate, agg.Kind)
}

func TestKindText(t *testing.T) {
	for _, k := range []Kind{Individual, Aggregate, EmptyAggregate} {
		text, err := k.MarshalText()
		require.NoError(t, err)
		var back Kind
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, k, back)
	}
	_, err := ParseKind("bogus")
	assert.Error(t, err)
}
