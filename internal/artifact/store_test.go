package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/globallink/internal/contracts"
)

func TestStore_WriteAndReadLatest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "raw")
	store := NewRawStore(dir)

	ts := time.Date(2024, 5, 10, 10, 30, 0, 0, time.UTC)
	snap := contracts.RawSnapshot{Meta: contracts.SnapshotMeta{Timestamp: "2024-05-10 10:30", RunID: "r1"}}

	archive, err := store.Write(ts, snap)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "market_snap_20240510_1030.json"), archive)

	archived, err := os.ReadFile(archive)
	require.NoError(t, err)
	latest, err := os.ReadFile(store.LatestPath())
	require.NoError(t, err)
	assert.Equal(t, archived, latest, "archive and latest hold the same document")

	var got contracts.RawSnapshot
	require.NoError(t, store.ReadLatest(&got))
	assert.Equal(t, "r1", got.Meta.RunID)
}

func TestStore_LatestIsOverwritten(t *testing.T) {
	store := NewMetricsStore(t.TempDir())

	t1 := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)
	_, err := store.Write(t1, contracts.MetricsMatrix{AsOf: "first"})
	require.NoError(t, err)
	_, err = store.Write(t1.Add(30*time.Minute), contracts.MetricsMatrix{AsOf: "second"})
	require.NoError(t, err)

	var got contracts.MetricsMatrix
	require.NoError(t, store.ReadLatest(&got))
	assert.Equal(t, "second", got.AsOf)

	archives, err := store.Archives()
	require.NoError(t, err)
	require.Len(t, archives, 2)
	assert.Equal(t, "metrics_20240510_1000.json", filepath.Base(archives[0]))
	assert.Equal(t, "metrics_20240510_1030.json", filepath.Base(archives[1]))
}

func TestStore_ReadLatest_Missing(t *testing.T) {
	err := NewRawStore(t.TempDir()).ReadLatest(&contracts.RawSnapshot{})
	assert.True(t, errors.Is(err, ErrNoLatest))
}

func TestStore_Archives_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"market_snap_20240511_0930.json", "market_snap_20240510_1500.json", "latest_snap.json", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}

	archives, err := NewRawStore(dir).Archives()
	require.NoError(t, err)
	require.Len(t, archives, 2)
	assert.Equal(t, "market_snap_20240510_1500.json", filepath.Base(archives[0]))

	missing, err := NewRawStore(filepath.Join(dir, "nope")).Archives()
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestStore_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "raw")
	require.NoError(t, os.WriteFile(blocker, []byte("file, not dir"), 0o644))

	_, err := NewRawStore(blocker).Write(time.Now(), map[string]string{})
	require.Error(t, err)
	assert.True(t, contracts.IsPersistence(err))
}
