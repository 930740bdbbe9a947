package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/shorts-publisher/internal/jobs"
)

const JSONFileName = "uploads.json"

type document struct {
	Videos []*jobs.UploadJob `json:"videos"`
	Runs   []jobs.RunSummary `json:"runs"`
}

// JSONStore keeps every job and run summary in one document that is read in
// full on each call and replaced atomically on each write.
type JSONStore struct {
	path         string
	historyLimit int
	now          func() time.Time

	mu sync.Mutex
}

func NewJSONStore(path string, historyLimit int) (*JSONStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("json store path is required")
	}
	if historyLimit <= 0 {
		historyLimit = jobs.DefaultRunHistoryLimit
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s := &JSONStore{path: path, historyLimit: historyLimit, now: time.Now}
	// Surface a corrupt document at startup rather than on the first run.
	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) read() (*document, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &document{Videos: []*jobs.UploadJob{}, Runs: []jobs.RunSummary{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if doc.Videos == nil {
		doc.Videos = []*jobs.UploadJob{}
	}
	if doc.Runs == nil {
		doc.Runs = []jobs.RunSummary{}
	}
	return &doc, nil
}

func (s *JSONStore) write(doc *document) error {
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	content = append(content, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".uploads-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", s.path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file for %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file for %s: %w", s.path, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("atomic rename for %s: %w", s.path, err)
	}
	return nil
}

func (s *JSONStore) ListAll(ctx context.Context) ([]*jobs.UploadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	jobs.SortByCreation(doc.Videos)
	return doc.Videos, nil
}

func (s *JSONStore) Get(ctx context.Context, id string) (*jobs.UploadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	for _, job := range doc.Videos {
		if job.ID == id {
			return job, nil
		}
	}
	return nil, jobs.ErrNotFound
}

func (s *JSONStore) Save(ctx context.Context, job *jobs.UploadJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	upsert(doc, jobs.Clone(job))
	return s.write(doc)
}

func upsert(doc *document, job *jobs.UploadJob) {
	for i, existing := range doc.Videos {
		if existing.ID == job.ID {
			doc.Videos[i] = job
			return
		}
	}
	doc.Videos = append(doc.Videos, job)
}

func (s *JSONStore) UpsertPartial(ctx context.Context, id string, patch jobs.Patch) (*jobs.UploadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	var merged *jobs.UploadJob
	for _, existing := range doc.Videos {
		if existing.ID == id {
			merged = existing
			break
		}
	}
	if merged == nil {
		merged = jobs.NewFromPatch(id, patch, now)
	} else {
		patch.ApplyTo(merged, now)
	}
	upsert(doc, merged)
	if err := s.write(doc); err != nil {
		return nil, err
	}
	return jobs.Clone(merged), nil
}

func (s *JSONStore) ListDue(ctx context.Context, now time.Time) ([]*jobs.UploadJob, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return jobs.SelectDue(all, now), nil
}

func (s *JSONStore) AppendRunSummary(ctx context.Context, summary jobs.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Runs = append([]jobs.RunSummary{summary}, doc.Runs...)
	if len(doc.Runs) > s.historyLimit {
		doc.Runs = doc.Runs[:s.historyLimit]
	}
	return s.write(doc)
}

func (s *JSONStore) ListRecentRunSummaries(ctx context.Context, limit int) ([]jobs.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(doc.Runs) > limit {
		return doc.Runs[:limit], nil
	}
	return doc.Runs, nil
}

func (s *JSONStore) NextScheduledTime(ctx context.Context, now time.Time) (time.Time, bool, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	next, ok := jobs.EarliestAfter(all, now)
	return next, ok, nil
}
