package imageutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherlock-kb/sherlock/internal/apperr"
)

var testPNG = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}

func TestFetcher_FetchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.png")
	require.NoError(t, os.WriteFile(path, testPNG, 0o644))

	f := NewFetcher(time.Second)

	data, mime, err := f.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, testPNG, data)
}

func TestFetcher_FetchFileUnsupportedExtension(t *testing.T) {
	f := NewFetcher(time.Second)

	_, _, err := f.Fetch(context.Background(), "/tmp/whatever.txt")
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, apperr.TagValidation))
}

func TestFetcher_FetchFileMissing(t *testing.T) {
	f := NewFetcher(time.Second)

	_, _, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, apperr.TagNotFound))
}

func TestListFolder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), testPNG, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte{0xFF, 0xD8, 0xFF}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o755))

	paths, err := ListFolder(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.png"),
	}, paths)
}

func TestListFolder_Missing(t *testing.T) {
	_, err := ListFolder(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, apperr.TagNotFound))
}
