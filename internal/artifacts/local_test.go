package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorePutWritesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewLocal(LocalConfig{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.Put(context.Background(), "org/site/drain-repair.html", "text/html", []byte("<p>body</p>"))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "org/site/drain-repair.html"), uri)

	data, err := os.ReadFile(filepath.Join(dir, "org/site/drain-repair.html"))
	require.NoError(t, err)
	require.Equal(t, "<p>body</p>", string(data))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(LocalConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../escape.html", "", []byte("x"))
	require.ErrorContains(t, err, "traversal")
}

func TestNewLocalCreatesMissingDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "artifacts")
	_, err := NewLocal(LocalConfig{BaseDir: dir})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewLocalRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := NewLocal(LocalConfig{})
	require.Error(t, err)
}
