package discovery

import (
	"sync"
	"testing"

	"go-scooterscan/types"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustIndividual(t *testing.T, id string, p orb.Point) types.Record {
	t.Helper()
	r, err := types.NewIndividual(id, p, nil)
	require.NoError(t, err)
	return r
}

func mustAggregate(t *testing.T, id string, p orb.Point, n int) types.Record {
	t.Helper()
	r, err := types.NewAggregate(id, p, n, nil)
	require.NoError(t, err)
	return r
}

func TestAccumulatorLastWriteWins(t *testing.T) {
	acc := NewAccumulator()
	acc.Merge(mustIndividual(t, "a", orb.Point{1, 1}), mustIndividual(t, "b", orb.Point{2, 2}))
	acc.Merge(mustIndividual(t, "a", orb.Point{3, 3}))

	snap := acc.Snapshot()
	assert.Equal(t, 2, acc.Len())
	assert.Equal(t, orb.Point{3, 3}, snap["a"].Point)
}

func TestAccumulatorMergeIsIdempotent(t *testing.T) {
	recs := []types.Record{mustIndividual(t, "a", orb.Point{1, 1}), mustAggregate(t, "c", orb.Point{2, 2}, 7)}

	acc := NewAccumulator()
	acc.Merge(recs...)
	once := acc.Snapshot()
	acc.Merge(recs...)

	assert.Equal(t, once, acc.Snapshot())
	assert.Equal(t, map[types.Kind]int{types.Individual: 1, types.Aggregate: 1}, acc.Counts())
}

func TestAccumulatorSkipsInvalidRecords(t *testing.T) {
	acc := NewAccumulator()
	acc.Merge(types.Record{Kind: types.Individual, Point: orb.Point{1, 1}})
	acc.Merge(types.Record{ID: "x", Kind: types.Individual, Point: orb.Point{200, 1}})
	assert.Zero(t, acc.Len())
}

func TestAccumulatorSnapshotIsACopy(t *testing.T) {
	acc := NewAccumulator()
	acc.Seed([]types.Record{mustIndividual(t, "a", orb.Point{1, 1})})
	snap := acc.Snapshot()
	delete(snap, "a")
	assert.Equal(t, 1, acc.Len())
}

func TestAccumulatorConcurrentMerge(t *testing.T) {
	acc := NewAccumulator()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				acc.Merge(types.Record{ID: string(rune('a'+w)) + "-" + string(rune('0'+i%10)), Kind: types.Individual, Point: orb.Point{1, 1}})
				_ = acc.Len()
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 80, acc.Len())
}
