package discovery

import (
	"sync"

	"go-scooterscan/types"
)

// Accumulator is the id-keyed store a run merges everything into. A record
// seen again replaces the earlier copy. Runs merge from a single goroutine;
// the lock only lets status readers look at a run in progress.
type Accumulator struct {
	mu      sync.RWMutex
	records map[string]types.Record
}

func NewAccumulator() *Accumulator {
	return &Accumulator{records: make(map[string]types.Record)}
}

// Merge inserts or overwrites by id. Records breaking the id/point invariant
// are skipped.
func (a *Accumulator) Merge(records ...types.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range records {
		if r.ID == "" || !types.ValidPoint(r.Point) {
			continue
		}
		a.records[r.ID] = r
	}
}

// Snapshot returns a copy of the current contents.
func (a *Accumulator) Snapshot() map[string]types.Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]types.Record, len(a.records))
	for id, r := range a.records {
		out[id] = r
	}
	return out
}

func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// Counts tallies records per kind.
func (a *Accumulator) Counts() map[types.Kind]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return CountKinds(a.records)
}

func CountKinds(records map[string]types.Record) map[types.Kind]int {
	counts := make(map[types.Kind]int, 3)
	for _, r := range records {
		counts[r.Kind]++
	}
	return counts
}

// Seed loads records from an earlier run. It is Merge under another name so
// resumed runs read clearly at the call site.
func (a *Accumulator) Seed(records []types.Record) { a.Merge(records...) }
