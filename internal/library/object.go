package library

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MimeLyc/shorts-publisher/internal/config"
	"github.com/MimeLyc/shorts-publisher/pkg/log"
	"github.com/google/uuid"
	miniosdk "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectStore is the slice of the S3 API the object source needs.
type objectStore interface {
	ListObjects(ctx context.Context, bucketName string, opts miniosdk.ListObjectsOptions) <-chan miniosdk.ObjectInfo
	StatObject(ctx context.Context, bucketName, objectName string, opts miniosdk.StatObjectOptions) (miniosdk.ObjectInfo, error)
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts miniosdk.GetObjectOptions) error
	CopyObject(ctx context.Context, dst miniosdk.CopyDestOptions, src miniosdk.CopySrcOptions) (miniosdk.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts miniosdk.RemoveObjectOptions) error
	ReadObject(ctx context.Context, bucketName, objectName string) ([]byte, error)
}

type minioClient struct {
	*miniosdk.Client
}

func (c minioClient) ReadObject(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	obj, err := c.GetObject(ctx, bucketName, objectName, miniosdk.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// ObjectSource discovers videos in an S3 compatible bucket.
type ObjectSource struct {
	client        objectStore
	bucket        string
	prefix        string
	archivePrefix string
	tempDir       string
}

// NewObjectSource connects to the configured endpoint. The bucket must exist.
func NewObjectSource(ctx context.Context, cfg config.StorageConfig) (*ObjectSource, error) {
	client, err := miniosdk.New(cfg.Endpoint, &miniosdk.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}

	return newObjectSource(minioClient{client}, cfg), nil
}

func newObjectSource(client objectStore, cfg config.StorageConfig) *ObjectSource {
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &ObjectSource{
		client:        client,
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		archivePrefix: strings.Trim(cfg.ArchivePrefix, "/"),
		tempDir:       tempDir,
	}
}

func (s *ObjectSource) inArchive(key string) bool {
	return s.archivePrefix != "" && strings.HasPrefix(key, s.archivePrefix+"/")
}

func (s *ObjectSource) List(ctx context.Context) ([]Asset, error) {
	listed := make(map[string]miniosdk.ObjectInfo)
	for obj := range s.client.ListObjects(ctx, s.bucket, miniosdk.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", s.bucket, s.prefix, obj.Err)
		}
		if s.inArchive(obj.Key) {
			continue
		}
		listed[obj.Key] = obj
	}

	assets := make([]Asset, 0)
	for key, obj := range listed {
		if !isVideoKey(key) {
			continue
		}
		asset := Asset{
			Key:          key,
			Bucket:       s.bucket,
			Fingerprint:  strings.Trim(obj.ETag, `"`),
			Size:         obj.Size,
			LastModified: obj.LastModified.UTC(),
		}
		for _, candidate := range companionKeys(key) {
			if _, ok := listed[candidate]; ok {
				asset.SidecarKey = candidate
				break
			}
		}
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Key < assets[j].Key })
	return assets, nil
}

func (s *ObjectSource) ReadSidecar(ctx context.Context, key string) (string, error) {
	data, err := s.client.ReadObject(ctx, s.bucket, key)
	if err != nil {
		return "", fmt.Errorf("read sidecar %s: %w", key, err)
	}
	return string(data), nil
}

func (s *ObjectSource) Download(ctx context.Context, key string) (string, error) {
	dir := filepath.Join(s.tempDir, "shorts-publisher")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	dst := filepath.Join(dir, uuid.NewString()+"-"+path.Base(key))
	if err := s.client.FGetObject(ctx, s.bucket, key, dst, miniosdk.GetObjectOptions{}); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	return dst, nil
}

func (s *ObjectSource) archiveKey(key string) string {
	return path.Join(s.archivePrefix, path.Base(key))
}

func (s *ObjectSource) move(ctx context.Context, key string) error {
	_, err := s.client.CopyObject(ctx,
		miniosdk.CopyDestOptions{Bucket: s.bucket, Object: s.archiveKey(key)},
		miniosdk.CopySrcOptions{Bucket: s.bucket, Object: key},
	)
	if err != nil {
		return fmt.Errorf("copy %s: %w", key, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, miniosdk.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *ObjectSource) Archive(ctx context.Context, key string) error {
	if err := s.move(ctx, key); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	for _, companion := range companionKeys(key) {
		if _, err := s.client.StatObject(ctx, s.bucket, companion, miniosdk.StatObjectOptions{}); err != nil {
			continue
		}
		if err := s.move(ctx, companion); err != nil {
			log.Warn("Failed to archive companion %s: %v", companion, err)
		}
	}
	return nil
}
