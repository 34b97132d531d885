package snapshot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchgate/patchgate/internal/snapshot"
	"github.com/patchgate/patchgate/pkg/model"
)

func saveN(t *testing.T, store *snapshot.Store, n int) []string {
	t.Helper()
	var dirs []string
	for i := 0; i < n; i++ {
		d, err := store.Save([]model.Patch{model.Create{Path: "x.txt", Content: "x"}})
		require.NoError(t, err)
		dirs = append(dirs, d)
	}
	return dirs
}

func TestList_Empty(t *testing.T) {
	infos, err := snapshot.NewStore(t.TempDir(), nil).List()
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestList_NewestFirstSkipsBroken(t *testing.T) {
	dir := t.TempDir()
	store := snapshot.NewStore(dir, nil)
	dirs := saveN(t, store, 3)
	require.NoError(t, os.MkdirAll(filepath.Join(store.Root(), "broken"), 0755))

	infos, err := store.List()
	require.NoError(t, err)
	require.Len(t, infos, 3)
	for i := 1; i < len(infos); i++ {
		assert.False(t, infos[i].Manifest.CreatedAt.After(infos[i-1].Manifest.CreatedAt))
	}

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, infos[0].Dir, latest.Dir)
	assert.Contains(t, dirs, latest.Dir)
}

func TestLatest_None(t *testing.T) {
	_, err := snapshot.NewStore(t.TempDir(), nil).Latest()
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	store := snapshot.NewStore(dir, nil)
	dirs := saveN(t, store, 1)
	id := filepath.Base(dirs[0])

	got, err := store.Resolve(dirs[0])
	require.NoError(t, err)
	assert.Equal(t, dirs[0], got)

	got, err = store.Resolve(id)
	require.NoError(t, err)
	assert.Equal(t, dirs[0], got)

	got, err = store.Resolve(id[:10])
	require.NoError(t, err)
	assert.Equal(t, dirs[0], got)

	_, err = store.Resolve("zzz")
	assert.Error(t, err)
	_, err = store.Resolve("")
	assert.Error(t, err)
}

func TestResolve_Ambiguous(t *testing.T) {
	store := snapshot.NewStore(t.TempDir(), nil)
	saveN(t, store, 2)

	_, err := store.Resolve("1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}
