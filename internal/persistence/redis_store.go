package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MimeLyc/shorts-publisher/internal/jobs"
	"github.com/redis/go-redis/v9"
)

const (
	redisJobPrefix  = "uploads:"
	redisIndexKey   = "uploads:index"
	redisHistoryKey = "runs:history"

	// optimistic transaction retries for UpsertPartial
	redisWatchRetries = 5
)

// RedisStore keeps one hash per job, a sorted index scored by creation time
// and a bounded list of run summaries.
type RedisStore struct {
	client       redis.UniversalClient
	historyLimit int
	now          func() time.Time
}

func NewRedisStore(client redis.UniversalClient, historyLimit int) *RedisStore {
	if historyLimit <= 0 {
		historyLimit = jobs.DefaultRunHistoryLimit
	}
	return &RedisStore{client: client, historyLimit: historyLimit, now: time.Now}
}

// DialRedis parses a redis:// URL and verifies the server answers.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Client exposes the connection so other redis-backed components can share it.
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func jobKey(id string) string {
	return redisJobPrefix + id
}

func encodeHash(job *jobs.UploadJob) (map[string]interface{}, error) {
	meta, err := json.Marshal(job.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata for %s: %w", job.ID, err)
	}
	fields := map[string]interface{}{
		"id":           job.ID,
		"source_key":   job.SourceKey,
		"bucket":       job.Bucket,
		"status":       string(job.Status),
		"scheduled_at": job.ScheduledAt.UTC().Format(time.RFC3339Nano),
		"created_at":   job.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":   job.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"metadata":     string(meta),
		"attempts":     strconv.Itoa(job.Attempts),
	}
	if job.VideoID != "" {
		fields["video_id"] = job.VideoID
	}
	if job.ThumbnailKey != "" {
		fields["thumbnail_key"] = job.ThumbnailKey
	}
	if job.ErrorMessage != "" {
		fields["error_message"] = job.ErrorMessage
	}
	if job.PublishedAt != nil {
		fields["published_at"] = job.PublishedAt.UTC().Format(time.RFC3339Nano)
	}
	return fields, nil
}

func decodeHash(id string, data map[string]string) (*jobs.UploadJob, error) {
	if len(data) == 0 {
		return nil, nil
	}
	job := &jobs.UploadJob{
		ID:           id,
		SourceKey:    data["source_key"],
		Bucket:       data["bucket"],
		Status:       jobs.Status(data["status"]),
		VideoID:      data["video_id"],
		ThumbnailKey: data["thumbnail_key"],
		ErrorMessage: data["error_message"],
	}
	var err error
	if job.ScheduledAt, err = parseRedisTime(data["scheduled_at"]); err != nil {
		return nil, fmt.Errorf("job %s scheduled_at: %w", id, err)
	}
	if job.CreatedAt, err = parseRedisTime(data["created_at"]); err != nil {
		return nil, fmt.Errorf("job %s created_at: %w", id, err)
	}
	if job.UpdatedAt, err = parseRedisTime(data["updated_at"]); err != nil {
		return nil, fmt.Errorf("job %s updated_at: %w", id, err)
	}
	if raw, ok := data["published_at"]; ok && raw != "" {
		published, err := parseRedisTime(raw)
		if err != nil {
			return nil, fmt.Errorf("job %s published_at: %w", id, err)
		}
		job.PublishedAt = &published
	}
	if raw := data["attempts"]; raw != "" {
		if job.Attempts, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("job %s attempts: %w", id, err)
		}
	}
	if raw := data["metadata"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Metadata); err != nil {
			return nil, fmt.Errorf("job %s metadata: %w", id, err)
		}
	}
	return job, nil
}

func parseRedisTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// writeJob replaces the hash so optional fields cleared on the record do not
// linger, and keeps the index entry in step.
func writeJob(ctx context.Context, pipe redis.Pipeliner, job *jobs.UploadJob) error {
	fields, err := encodeHash(job)
	if err != nil {
		return err
	}
	key := jobKey(job.ID)
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.ZAdd(ctx, redisIndexKey, redis.Z{
		Score:  float64(job.CreatedAt.UnixMilli()),
		Member: job.ID,
	})
	return nil
}

func (s *RedisStore) ListAll(ctx context.Context) ([]*jobs.UploadJob, error) {
	ids, err := s.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read upload index: %w", err)
	}
	if len(ids) == 0 {
		return []*jobs.UploadJob{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, jobKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read upload hashes: %w", err)
	}

	ret := make([]*jobs.UploadJob, 0, len(ids))
	for i, cmd := range cmds {
		job, err := decodeHash(ids[i], cmd.Val())
		if err != nil {
			return nil, err
		}
		// An index entry without a hash is skipped.
		if job == nil {
			continue
		}
		ret = append(ret, job)
	}
	jobs.SortByCreation(ret)
	return ret, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*jobs.UploadJob, error) {
	data, err := s.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", id, err)
	}
	job, err := decodeHash(id, data)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, jobs.ErrNotFound
	}
	return job, nil
}

func (s *RedisStore) Save(ctx context.Context, job *jobs.UploadJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return writeJob(ctx, pipe, job)
	})
	if err != nil {
		return fmt.Errorf("save upload %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisStore) UpsertPartial(ctx context.Context, id string, patch jobs.Patch) (*jobs.UploadJob, error) {
	key := jobKey(id)
	var merged *jobs.UploadJob

	txf := func(tx *redis.Tx) error {
		data, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		existing, err := decodeHash(id, data)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if existing == nil {
			merged = jobs.NewFromPatch(id, patch, now)
		} else {
			patch.ApplyTo(existing, now)
			merged = existing
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return writeJob(ctx, pipe, merged)
		})
		return err
	}

	for range redisWatchRetries {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return jobs.Clone(merged), nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("upsert upload %s: %w", id, err)
	}
	return nil, fmt.Errorf("upsert upload %s: too many concurrent modifications", id)
}

func (s *RedisStore) ListDue(ctx context.Context, now time.Time) ([]*jobs.UploadJob, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return jobs.SelectDue(all, now), nil
}

func (s *RedisStore) AppendRunSummary(ctx context.Context, summary jobs.RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, redisHistoryKey, payload)
		pipe.LTrim(ctx, redisHistoryKey, 0, int64(s.historyLimit-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("append run summary: %w", err)
	}
	return nil
}

func (s *RedisStore) ListRecentRunSummaries(ctx context.Context, limit int) ([]jobs.RunSummary, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	rows, err := s.client.LRange(ctx, redisHistoryKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read run history: %w", err)
	}
	ret := make([]jobs.RunSummary, 0, len(rows))
	for _, row := range rows {
		var summary jobs.RunSummary
		if err := json.Unmarshal([]byte(row), &summary); err != nil {
			return nil, fmt.Errorf("decode run summary: %w", err)
		}
		ret = append(ret, summary)
	}
	return ret, nil
}

func (s *RedisStore) NextScheduledTime(ctx context.Context, now time.Time) (time.Time, bool, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	next, ok := jobs.EarliestAfter(all, now)
	return next, ok, nil
}
