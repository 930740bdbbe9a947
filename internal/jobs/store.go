package jobs

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("upload job not found")

// DefaultRunHistoryLimit caps how many run summaries a store keeps.
const DefaultRunHistoryLimit = 50

// Store persists upload jobs and run summaries. Every backend must be
// observably identical through this contract.
type Store interface {
	ListAll(ctx context.Context) ([]*UploadJob, error)
	Get(ctx context.Context, id string) (*UploadJob, error)
	// Save upserts the whole record.
	Save(ctx context.Context, job *UploadJob) error
	// UpsertPartial merges the patch into the stored record, or synthesizes a
	// new record when the id is unknown.
	UpsertPartial(ctx context.Context, id string, patch Patch) (*UploadJob, error)
	// ListDue returns pending, scheduled and failed jobs whose scheduled time
	// is not after now, oldest first.
	ListDue(ctx context.Context, now time.Time) ([]*UploadJob, error)
	AppendRunSummary(ctx context.Context, summary RunSummary) error
	// ListRecentRunSummaries returns at most limit summaries, newest first.
	ListRecentRunSummaries(ctx context.Context, limit int) ([]RunSummary, error)
	// NextScheduledTime returns the earliest scheduled time strictly after now.
	NextScheduledTime(ctx context.Context, now time.Time) (time.Time, bool, error)
	Close() error
}

// SelectDue filters and orders jobs the same way every backend's ListDue does.
func SelectDue(all []*UploadJob, now time.Time) []*UploadJob {
	ret := make([]*UploadJob, 0)
	for _, job := range all {
		if IsDue(job, now) {
			ret = append(ret, job)
		}
	}
	SortByCreation(ret)
	return ret
}

// CountByStatus tallies jobs per status.
func CountByStatus(all []*UploadJob) map[Status]int {
	ret := map[Status]int{
		StatusScheduled: 0,
		StatusPending:   0,
		StatusUploading: 0,
		StatusUploaded:  0,
		StatusFailed:    0,
	}
	for _, job := range all {
		ret[job.Status]++
	}
	return ret
}
