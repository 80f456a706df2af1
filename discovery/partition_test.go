package discovery

import (
	"math/rand"
	"testing"
	"time"

	"go-scooterscan/types"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionThreePointsTwoCells(t *testing.T) {
	points := []orb.Point{{0, 0}, {0.5, 0.5}, {1.5, 0.2}}

	cells := Partition(points, 1.0)
	require.Len(t, cells, 2)

	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, cells[0].Bound)
	assert.Equal(t, orb.Bound{Min: orb.Point{1, 0}, Max: orb.Point{2, 1}}, cells[1].Bound)
	assert.Equal(t, orb.Point{0.5, 0.5}, cells[0].Ref)
}

func TestPartitionEveryPointInExactlyOneCell(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	points := make([]orb.Point, 500)
	for i := range points {
		points[i] = orb.Point{37.3 + rng.Float64()*0.5, 55.5 + rng.Float64()*0.4}
	}
	// points sitting exactly on grid lines
	points = append(points, orb.Point{37.3, 55.5}, orb.Point{37.32, 55.52}, orb.Point{37.34, 55.5})

	cells := Partition(points, 0.02)
	require.NotEmpty(t, cells)

	for _, p := range points {
		hits := 0
		for _, c := range cells {
			if c.Contains(p) {
				hits++
			}
		}
		assert.Equal(t, 1, hits, "point %v", p)
	}

	for _, c := range cells {
		occupied := false
		for _, p := range points {
			if c.Contains(p) {
				occupied = true
				break
			}
		}
		assert.True(t, occupied, "cell %s has no points", c.Key())
	}
}

func TestPartitionIsDeterministic(t *testing.T) {
	points := []orb.Point{{3, 3}, {0, 0}, {2, 0}, {0, 2}, {1.1, 1.1}}
	first := Partition(points, 1)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Partition(points, 1))
	}
	// row-major order
	var prev orb.Point
	for i, c := range first {
		if i > 0 {
			assert.True(t, c.Bound.Min.Lat() > prev.Lat() ||
				(c.Bound.Min.Lat() == prev.Lat() && c.Bound.Min.Lon() > prev.Lon()))
		}
		prev = c.Bound.Min
	}
}

func TestPartitionDegenerateInputs(t *testing.T) {
	assert.Empty(t, Partition(nil, 0.02))
	assert.Empty(t, Partition([]orb.Point{{1, 1}}, 0))
	assert.Empty(t, Partition([]orb.Point{{1, 1}}, -1))
	assert.Empty(t, Partition([]orb.Point{{500, 1}}, 0.1))

	single := Partition([]orb.Point{{10, 20}, {10, 20}}, 0.5)
	require.Len(t, single, 1)
	assert.True(t, single[0].Contains(orb.Point{10, 20}))
}

func TestPartitionRejectsTinyCellSize(t *testing.T) {
	pts := []orb.Point{{37.1, 55.1}, {37.9, 55.9}}
	done := make(chan []types.Region)
	go func() { done <- Partition(pts, 1e-300) }()

	select {
	case cells := <-done:
		assert.Empty(t, cells)
	case <-time.After(time.Second):
		t.Fatal("Partition did not return for a tiny cell size")
	}

	assert.NotEmpty(t, Partition(pts, MinCellSize))
}
