package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/shorts-publisher/internal/jobs"
	_ "modernc.org/sqlite"
)

// Fixed width so lexical order matches chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db           *sql.DB
	historyLimit int
	now          func() time.Time
}

func NewSQLiteStore(path string, historyLimit int) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if historyLimit <= 0 {
		historyLimit = jobs.DefaultRunHistoryLimit
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, historyLimit: historyLimit, now: time.Now}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(raw string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

const uploadColumns = `id, source_key, bucket, status, scheduled_at, metadata_json, attempts,
	created_at, updated_at, video_id, thumbnail_key, error_message, published_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (*jobs.UploadJob, error) {
	var (
		job                           jobs.UploadJob
		status, scheduledAt, metadata string
		createdAt, updatedAt          string
		videoID, thumbnailKey, errMsg sql.NullString
		publishedAt                   sql.NullString
	)
	if err := row.Scan(
		&job.ID,
		&job.SourceKey,
		&job.Bucket,
		&status,
		&scheduledAt,
		&metadata,
		&job.Attempts,
		&createdAt,
		&updatedAt,
		&videoID,
		&thumbnailKey,
		&errMsg,
		&publishedAt,
	); err != nil {
		return nil, err
	}
	job.Status = jobs.Status(status)
	job.VideoID = videoID.String
	job.ThumbnailKey = thumbnailKey.String
	job.ErrorMessage = errMsg.String

	var err error
	if job.ScheduledAt, err = parseSQLiteTime(scheduledAt); err != nil {
		return nil, fmt.Errorf("job %s scheduled_at: %w", job.ID, err)
	}
	if job.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, fmt.Errorf("job %s created_at: %w", job.ID, err)
	}
	if job.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, fmt.Errorf("job %s updated_at: %w", job.ID, err)
	}
	if publishedAt.Valid {
		t, err := parseSQLiteTime(publishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("job %s published_at: %w", job.ID, err)
		}
		job.PublishedAt = &t
	}
	if err := json.Unmarshal([]byte(metadata), &job.Metadata); err != nil {
		return nil, fmt.Errorf("job %s metadata: %w", job.ID, err)
	}
	return &job, nil
}

func (s *SQLiteStore) queryUploads(ctx context.Context, where string, args ...any) ([]*jobs.UploadJob, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads ` + where + ` ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.UploadJob, 0)
	for rows.Next() {
		job, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]*jobs.UploadJob, error) {
	return s.queryUploads(ctx, "")
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getUpload(ctx context.Context, q queryRower, id string) (*jobs.UploadJob, error) {
	row := q.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id)
	job, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.ErrNotFound
	}
	return job, err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*jobs.UploadJob, error) {
	return getUpload(ctx, s.db, id)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveUpload(ctx context.Context, e execer, job *jobs.UploadJob) error {
	metadata, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata for %s: %w", job.ID, err)
	}
	var publishedAt sql.NullString
	if job.PublishedAt != nil {
		publishedAt = sql.NullString{String: formatSQLiteTime(*job.PublishedAt), Valid: true}
	}
	_, err = e.ExecContext(
		ctx,
		`INSERT INTO uploads (`+uploadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_key=excluded.source_key,
			bucket=excluded.bucket,
			status=excluded.status,
			scheduled_at=excluded.scheduled_at,
			metadata_json=excluded.metadata_json,
			attempts=excluded.attempts,
			created_at=excluded.created_at,
			updated_at=excluded.updated_at,
			video_id=excluded.video_id,
			thumbnail_key=excluded.thumbnail_key,
			error_message=excluded.error_message,
			published_at=excluded.published_at`,
		job.ID,
		job.SourceKey,
		job.Bucket,
		string(job.Status),
		formatSQLiteTime(job.ScheduledAt),
		string(metadata),
		job.Attempts,
		formatSQLiteTime(job.CreatedAt),
		formatSQLiteTime(job.UpdatedAt),
		nullString(job.VideoID),
		nullString(job.ThumbnailKey),
		nullString(job.ErrorMessage),
		publishedAt,
	)
	if err != nil {
		return fmt.Errorf("save upload %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, job *jobs.UploadJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	return saveUpload(ctx, s.db, job)
}

func (s *SQLiteStore) UpsertPartial(ctx context.Context, id string, patch jobs.Patch) (*jobs.UploadJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	merged, err := getUpload(ctx, tx, id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		merged = jobs.NewFromPatch(id, patch, now)
	case err != nil:
		return nil, err
	default:
		patch.ApplyTo(merged, now)
	}
	if err := saveUpload(ctx, tx, merged); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert %s: %w", id, err)
	}
	return merged, nil
}

func (s *SQLiteStore) ListDue(ctx context.Context, now time.Time) ([]*jobs.UploadJob, error) {
	return s.queryUploads(
		ctx,
		`WHERE status IN (?, ?, ?) AND scheduled_at <= ?`,
		string(jobs.StatusPending),
		string(jobs.StatusScheduled),
		string(jobs.StatusFailed),
		formatSQLiteTime(now),
	)
}

func (s *SQLiteStore) AppendRunSummary(ctx context.Context, summary jobs.RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append run summary: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO run_history (summary_json, created_at) VALUES (?, ?)`,
		string(payload),
		formatSQLiteTime(s.now()),
	); err != nil {
		return fmt.Errorf("append run summary: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM run_history WHERE seq NOT IN (
			SELECT seq FROM run_history ORDER BY seq DESC LIMIT ?
		)`,
		s.historyLimit,
	); err != nil {
		return fmt.Errorf("trim run history: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListRecentRunSummaries(ctx context.Context, limit int) ([]jobs.RunSummary, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT summary_json FROM run_history ORDER BY seq DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]jobs.RunSummary, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var summary jobs.RunSummary
		if err := json.Unmarshal([]byte(raw), &summary); err != nil {
			return nil, fmt.Errorf("decode run summary: %w", err)
		}
		ret = append(ret, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) NextScheduledTime(ctx context.Context, now time.Time) (time.Time, bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(
		ctx,
		`SELECT MIN(scheduled_at) FROM uploads WHERE scheduled_at > ?`,
		formatSQLiteTime(now),
	).Scan(&raw)
	if err != nil {
		return time.Time{}, false, err
	}
	if !raw.Valid {
		return time.Time{}, false, nil
	}
	next, err := parseSQLiteTime(raw.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return next, true, nil
}
