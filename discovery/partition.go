package discovery

import (
	"math"
	"sort"

	"go-scooterscan/types"

	"github.com/paulmach/orb"
)

// MinCellSize is the smallest grid cell Partition accepts, in degrees.
const MinCellSize = 1e-6

type cellIndex struct {
	row, col int
}

// Partition buckets points into a grid of cellSize degree squares anchored
// at the minimum corner of their extent and returns one Region per non-empty
// cell, ordered by row then column. Invalid points are ignored and a cell
// size below MinCellSize (or not finite) yields no regions.
//
// Returned regions carry zoom 0; callers set the zoom they want to query at.
func Partition(points []orb.Point, cellSize float64) []types.Region {
	if !(cellSize >= MinCellSize) || math.IsInf(cellSize, 0) {
		return nil
	}

	var extent orb.Bound
	valid := make([]orb.Point, 0, len(points))
	for _, p := range points {
		if !types.ValidPoint(p) {
			continue
		}
		if len(valid) == 0 {
			extent = p.Bound()
		} else {
			extent = extent.Extend(p)
		}
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return nil
	}

	minLon, minLat := extent.Min.Lon(), extent.Min.Lat()
	cells := make(map[cellIndex]struct{})
	for _, p := range valid {
		cells[cellIndex{
			row: cellOf(p.Lat(), minLat, cellSize),
			col: cellOf(p.Lon(), minLon, cellSize),
		}] = struct{}{}
	}

	order := make([]cellIndex, 0, len(cells))
	for c := range cells {
		order = append(order, c)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].row != order[j].row {
			return order[i].row < order[j].row
		}
		return order[i].col < order[j].col
	})

	regions := make([]types.Region, 0, len(order))
	for _, c := range order {
		b := orb.Bound{
			Min: orb.Point{minLon + float64(c.col)*cellSize, minLat + float64(c.row)*cellSize},
			Max: orb.Point{minLon + float64(c.col+1)*cellSize, minLat + float64(c.row+1)*cellSize},
		}
		regions = append(regions, types.Region{Bound: b, Ref: b.Center()})
	}
	return regions
}

// cellOf returns the index i with min+i*size <= v < min+(i+1)*size, using the
// same arithmetic the emitted bounds use so membership never disagrees.
func cellOf(v, min, size float64) int {
	i := int(math.Floor((v - min) / size))
	if i < 0 {
		i = 0
	}
	for i > 0 && v < min+float64(i)*size {
		i--
	}
	for v >= min+float64(i+1)*size {
		i++
	}
	return i
}
