package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLocalSource_ListFindsVideosAndSidecars(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b_clip.mp4"), "video-b")
	writeFile(t, filepath.Join(root, "b_clip.txt"), "title: B")
	writeFile(t, filepath.Join(root, "nested", "a.MOV"), "video-a")
	writeFile(t, filepath.Join(root, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, "processed", "old.mp4"), "archived")

	src, err := NewLocalSource(root, "", t.TempDir())
	require.NoError(t, err)

	assets, err := src.List(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 2)

	assert.Equal(t, "b_clip.mp4", assets[0].Key)
	assert.Equal(t, "b_clip.txt", assets[0].SidecarKey)
	assert.Equal(t, LocalBucket, assets[0].Bucket)
	assert.Equal(t, int64(len("video-b")), assets[0].Size)
	assert.Len(t, assets[0].Fingerprint, 64)

	assert.Equal(t, "nested/a.MOV", assets[1].Key)
	assert.Empty(t, assets[1].SidecarKey)
}

func TestLocalSource_FingerprintTracksContent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "clip.mp4")
	writeFile(t, path, "one")

	src, err := NewLocalSource(root, "", t.TempDir())
	require.NoError(t, err)

	first, err := src.List(context.Background())
	require.NoError(t, err)
	again, err := src.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first[0].Fingerprint, again[0].Fingerprint)

	writeFile(t, path, "two")
	changed, err := src.List(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first[0].Fingerprint, changed[0].Fingerprint)
}

func TestLocalSource_DownloadAndSidecar(t *testing.T) {
	root := t.TempDir()
	tmp := t.TempDir()
	writeFile(t, filepath.Join(root, "clip.mp4"), "payload")
	writeFile(t, filepath.Join(root, "clip.json"), `{"title":"x"}`)

	src, err := NewLocalSource(root, "", tmp)
	require.NoError(t, err)
	ctx := context.Background()

	sidecar, err := src.ReadSidecar(ctx, "clip.json")
	require.NoError(t, err)
	assert.Equal(t, `{"title":"x"}`, sidecar)

	local, err := src.Download(ctx, "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmp, "shorts-publisher"), filepath.Dir(local))
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = src.Download(ctx, "missing.mp4")
	require.Error(t, err)
}

func TestLocalSource_ArchiveMovesCompanions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "clip.mp4"), "payload")
	writeFile(t, filepath.Join(root, "clip.json"), "{}")
	writeFile(t, filepath.Join(root, "clip.md"), "# notes")

	src, err := NewLocalSource(root, "", t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, src.Archive(ctx, "clip.mp4"))

	for _, name := range []string{"clip.mp4", "clip.json", "clip.md"} {
		assert.NoFileExists(t, filepath.Join(root, name))
		assert.FileExists(t, filepath.Join(root, "processed", name))
	}

	assets, err := src.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, assets)
}
