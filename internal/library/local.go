package library

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MimeLyc/shorts-publisher/pkg/file"
	"github.com/MimeLyc/shorts-publisher/pkg/log"
	"github.com/google/uuid"
)

const LocalBucket = "local"

// LocalSource discovers videos under a directory tree. Keys are slash
// separated paths relative to the root.
type LocalSource struct {
	root       string
	archiveDir string
	tempDir    string
}

func NewLocalSource(root, archiveDir, tempDir string) (*LocalSource, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("content root is required")
	}
	if archiveDir == "" {
		archiveDir = filepath.Join(root, "processed")
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create content root: %w", err)
	}
	return &LocalSource{
		root:       filepath.Clean(root),
		archiveDir: filepath.Clean(archiveDir),
		tempDir:    tempDir,
	}, nil
}

func (s *LocalSource) abs(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *LocalSource) List(ctx context.Context) ([]Asset, error) {
	assets := make([]Asset, 0)
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if filepath.Clean(path) == s.archiveDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !file.HasExt(path, VideoExtensions) {
			return nil
		}

		asset, err := s.describe(path)
		if err != nil {
			log.Warn("Skipping unreadable asset %s: %v", path, err)
			return nil
		}
		assets = append(assets, asset)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Key < assets[j].Key })
	return assets, nil
}

func (s *LocalSource) describe(path string) (Asset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Asset{}, err
	}
	fingerprint, err := hashFile(path)
	if err != nil {
		return Asset{}, err
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return Asset{}, err
	}

	asset := Asset{
		Key:          filepath.ToSlash(rel),
		Bucket:       LocalBucket,
		Fingerprint:  fingerprint,
		Size:         info.Size(),
		LastModified: info.ModTime().UTC(),
	}
	if companions := file.Companions(path, SidecarExtensions); len(companions) > 0 {
		sidecarRel, err := filepath.Rel(s.root, companions[0])
		if err == nil {
			asset.SidecarKey = filepath.ToSlash(sidecarRel)
		}
	}
	return asset, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *LocalSource) ReadSidecar(ctx context.Context, key string) (string, error) {
	data, err := os.ReadFile(s.abs(key))
	if err != nil {
		return "", fmt.Errorf("read sidecar %s: %w", key, err)
	}
	return string(data), nil
}

func (s *LocalSource) Download(ctx context.Context, key string) (string, error) {
	dir := filepath.Join(s.tempDir, "shorts-publisher")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	dst := filepath.Join(dir, uuid.NewString()+"-"+filepath.Base(s.abs(key)))
	if err := copyFile(s.abs(key), dst); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	return dst, nil
}

func (s *LocalSource) Archive(ctx context.Context, key string) error {
	if err := os.MkdirAll(s.archiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	src := s.abs(key)
	if err := moveFile(src, filepath.Join(s.archiveDir, filepath.Base(src))); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	for _, companion := range file.Companions(src, SidecarExtensions) {
		if err := moveFile(companion, filepath.Join(s.archiveDir, filepath.Base(companion))); err != nil {
			log.Warn("Failed to archive companion %s: %v", companion, err)
		}
	}
	return nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if errors.Is(err, fs.ErrNotExist) {
		return err
	}
	// Rename fails across devices; fall back to copy and remove.
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
