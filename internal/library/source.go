package library

import (
	"context"
	"fmt"

	"github.com/MimeLyc/shorts-publisher/internal/config"
)

// Open builds the asset source selected by configuration.
func Open(ctx context.Context, cfg config.StorageConfig) (Source, error) {
	switch cfg.Backend {
	case config.StorageLocal:
		return NewLocalSource(cfg.ContentDir, cfg.ArchiveDir, cfg.TempDir)
	case config.StorageS3:
		return NewObjectSource(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
