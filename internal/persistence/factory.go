package persistence

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/MimeLyc/shorts-publisher/internal/config"
	"github.com/MimeLyc/shorts-publisher/internal/jobs"
	"github.com/MimeLyc/shorts-publisher/pkg/log"
)

const SQLiteFileName = "uploads.db"

// Open builds the job store selected by configuration.
func Open(ctx context.Context, cfg config.PersistenceConfig) (jobs.Store, error) {
	switch cfg.Backend {
	case config.PersistenceJSON:
		path := filepath.Join(cfg.DataDir, JSONFileName)
		log.Info("Using json job store at %s", path)
		return NewJSONStore(path, cfg.RunHistoryLimit)
	case config.PersistenceRedis:
		client, err := DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		log.Info("Using redis job store")
		return NewRedisStore(client, cfg.RunHistoryLimit), nil
	case config.PersistenceSQLite:
		path := filepath.Join(cfg.DataDir, SQLiteFileName)
		log.Info("Using sqlite job store at %s", path)
		return NewSQLiteStore(path, cfg.RunHistoryLimit)
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", cfg.Backend)
	}
}
