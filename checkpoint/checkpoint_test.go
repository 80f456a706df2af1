package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"go-scooterscan/discovery"
	"go-scooterscan/types"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad(t *testing.T) {
	rec, err := types.NewAggregate("cluster_1", orb.Point{37.6, 55.7}, 64, map[string]any{"overlay_text": "64"})
	require.NoError(t, err)

	cell, err := types.NewRegion(orb.Bound{Min: orb.Point{37.6, 55.7}, Max: orb.Point{37.62, 55.72}}, 0)
	require.NoError(t, err)

	path := Path(t.TempDir(), "moscow")
	want := File{
		Target:   "moscow",
		Provider: "yandex",
		RunID:    "run-1",
		Checkpoint: discovery.Checkpoint{
			Completed: []string{"a@17", "b@17"},
			Records:   []types.Record{rec},
			Cells:     []types.Region{cell},
			Pending:   []types.Record{rec},
		},
	}
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.True(t, got.Matches("moscow", "yandex"))
	assert.False(t, got.Matches("moscow", "urent"))
	assert.Equal(t, want.Completed, got.Completed)
	require.Len(t, got.Records, 1)
	assert.Equal(t, types.Aggregate, got.Records[0].Kind)
	assert.Equal(t, 64, got.Records[0].MemberCount)
	assert.Equal(t, orb.Point{37.6, 55.7}, got.Records[0].Point)
	assert.Len(t, got.Pending, 1)
	assert.Equal(t, []types.Region{cell}, got.Cells)
	assert.Equal(t, cell.Key(), got.Cells[0].Key())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, Remove(path))
	require.NoError(t, Remove(path))
}

func TestLoadMissingIsEmpty(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "none.json.zst"))
	require.NoError(t, err)
	assert.Empty(t, f.Completed)
	assert.Empty(t, f.Records)
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json.zst")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
