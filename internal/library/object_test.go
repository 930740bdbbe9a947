package library

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/MimeLyc/shorts-publisher/internal/config"
	miniosdk "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	objects map[string]string
	copies  []string
}

func (f *fakeObjects) ListObjects(_ context.Context, _ string, opts miniosdk.ListObjectsOptions) <-chan miniosdk.ObjectInfo {
	ch := make(chan miniosdk.ObjectInfo, len(f.objects))
	for key, body := range f.objects {
		ch <- miniosdk.ObjectInfo{
			Key:          key,
			ETag:         `"etag-` + key + `"`,
			Size:         int64(len(body)),
			LastModified: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	close(ch)
	return ch
}

func (f *fakeObjects) StatObject(_ context.Context, _ string, key string, _ miniosdk.StatObjectOptions) (miniosdk.ObjectInfo, error) {
	if _, ok := f.objects[key]; !ok {
		return miniosdk.ObjectInfo{}, errors.New("NoSuchKey")
	}
	return miniosdk.ObjectInfo{Key: key}, nil
}

func (f *fakeObjects) FGetObject(_ context.Context, _ string, key, filePath string, _ miniosdk.GetObjectOptions) error {
	body, ok := f.objects[key]
	if !ok {
		return errors.New("NoSuchKey")
	}
	return os.WriteFile(filePath, []byte(body), 0o644)
}

func (f *fakeObjects) CopyObject(_ context.Context, dst miniosdk.CopyDestOptions, src miniosdk.CopySrcOptions) (miniosdk.UploadInfo, error) {
	body, ok := f.objects[src.Object]
	if !ok {
		return miniosdk.UploadInfo{}, errors.New("NoSuchKey")
	}
	f.objects[dst.Object] = body
	f.copies = append(f.copies, src.Object+"->"+dst.Object)
	return miniosdk.UploadInfo{Key: dst.Object}, nil
}

func (f *fakeObjects) RemoveObject(_ context.Context, _ string, key string, _ miniosdk.RemoveObjectOptions) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeObjects) ReadObject(_ context.Context, _ string, key string) ([]byte, error) {
	body, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return []byte(body), nil
}

func newFakeSource(t *testing.T, objects map[string]string) (*ObjectSource, *fakeObjects) {
	fake := &fakeObjects{objects: objects}
	src := newObjectSource(fake, config.StorageConfig{
		Bucket:        "shorts",
		ArchivePrefix: "processed/",
		TempDir:       t.TempDir(),
	})
	return src, fake
}

func TestObjectSource_ListUsesETagAndListedSidecars(t *testing.T) {
	src, _ := newFakeSource(t, map[string]string{
		"clips/a.mp4":       "aaaa",
		"clips/a.txt":       "title: A",
		"clips/b.mov":       "bb",
		"clips/readme.md":   "-",
		"processed/old.mp4": "old",
	})

	assets, err := src.List(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 2)

	assert.Equal(t, "clips/a.mp4", assets[0].Key)
	assert.Equal(t, "etag-clips/a.mp4", assets[0].Fingerprint)
	assert.Equal(t, int64(4), assets[0].Size)
	assert.Equal(t, "clips/a.txt", assets[0].SidecarKey)
	assert.Equal(t, "shorts", assets[0].Bucket)

	assert.Equal(t, "clips/b.mov", assets[1].Key)
	assert.Empty(t, assets[1].SidecarKey)
}

func TestObjectSource_DownloadAndArchive(t *testing.T) {
	src, fake := newFakeSource(t, map[string]string{
		"clips/a.mp4":  "aaaa",
		"clips/a.json": "{}",
	})
	ctx := context.Background()

	local, err := src.Download(ctx, "clips/a.mp4")
	require.NoError(t, err)
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "aaaa", string(data))

	sidecar, err := src.ReadSidecar(ctx, "clips/a.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", sidecar)

	require.NoError(t, src.Archive(ctx, "clips/a.mp4"))
	assert.Equal(t, []string{
		"clips/a.mp4->processed/a.mp4",
		"clips/a.json->processed/a.json",
	}, fake.copies)
	assert.NotContains(t, fake.objects, "clips/a.mp4")
	assert.Contains(t, fake.objects, "processed/a.json")
}
