package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolverSearchOrder(t *testing.T) {
	t.Parallel()

	first := t.TempDir()
	second := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(second, "Crystal.mp3"), []byte("id3"), 0o600))

	r := Resolver{Dirs: []string{first, second}}
	got, err := r.Resolve("Crystal.mp3")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(second, "Crystal.mp3"), got)

	require.NoError(t, os.WriteFile(filepath.Join(first, "Crystal.mp3"), []byte("id3"), 0o600))
	got, err = r.Resolve("Crystal.mp3")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(first, "Crystal.mp3"), got)
}

func TestResolverSkipsDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Crystal.mp3"), 0o700))

	_, err := Resolver{Dirs: []string{dir}}.Resolve("Crystal.mp3")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolverAbsolutePath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "alert.wav")
	_, err := Resolver{}.Resolve(path)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.WriteFile(path, nil, 0o600))
	got, err := Resolver{}.Resolve(path)
	require.NoError(t, err)
	require.Equal(t, path, got)
}

func TestDefaultResolverHonorsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDir, dir)

	r := DefaultResolver()
	require.NotEmpty(t, r.Dirs)
	require.Equal(t, dir, r.Dirs[0])
}
