package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"time"
)

// BuildID derives the stable job identity from the asset key, its content
// fingerprint and its size. Any change to one of them yields a new id.
func BuildID(key, fingerprint string, size int64) string {
	h := sha256.New()
	h.Write([]byte(key))
	h.Write([]byte(fingerprint))
	h.Write([]byte(strconv.FormatInt(size, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// Clone returns a deep copy so callers never share slices with a store.
func Clone(job *UploadJob) *UploadJob {
	if job == nil {
		return nil
	}
	cp := *job
	cp.Metadata.Hashtags = append([]string(nil), job.Metadata.Hashtags...)
	cp.Metadata.Tags = append([]string(nil), job.Metadata.Tags...)
	if job.PublishedAt != nil {
		t := *job.PublishedAt
		cp.PublishedAt = &t
	}
	return &cp
}

// ApplyTo merges the non-nil patch fields into job and refreshes UpdatedAt.
func (p Patch) ApplyTo(job *UploadJob, now time.Time) {
	if p.SourceKey != nil {
		job.SourceKey = *p.SourceKey
	}
	if p.Bucket != nil {
		job.Bucket = *p.Bucket
	}
	if p.Status != nil {
		job.Status = *p.Status
	}
	if p.ScheduledAt != nil {
		job.ScheduledAt = *p.ScheduledAt
	}
	if p.Metadata != nil {
		job.Metadata = *p.Metadata
	}
	if p.Attempts != nil {
		job.Attempts = *p.Attempts
	}
	if p.CreatedAt != nil {
		job.CreatedAt = *p.CreatedAt
	}
	if p.VideoID != nil {
		job.VideoID = *p.VideoID
	}
	if p.ThumbnailKey != nil {
		job.ThumbnailKey = *p.ThumbnailKey
	}
	if p.ErrorMessage != nil {
		job.ErrorMessage = *p.ErrorMessage
	}
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		job.PublishedAt = &t
	}
	job.UpdatedAt = now
}

// NewFromPatch synthesizes a record for an id the store has never seen.
// Unset fields fall back to a pending job created at now.
func NewFromPatch(id string, p Patch, now time.Time) *UploadJob {
	job := &UploadJob{
		ID:          id,
		Status:      StatusPending,
		ScheduledAt: now,
		CreatedAt:   now,
	}
	p.ApplyTo(job, now)
	return job
}

// SortByCreation orders jobs by creation time, breaking ties by id.
func SortByCreation(list []*UploadJob) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// EarliestAfter returns the earliest scheduled time strictly after now.
func EarliestAfter(list []*UploadJob, now time.Time) (time.Time, bool) {
	var best time.Time
	found := false
	for _, job := range list {
		if job.ScheduledAt.IsZero() || !job.ScheduledAt.After(now) {
			continue
		}
		if !found || job.ScheduledAt.Before(best) {
			best = job.ScheduledAt
			found = true
		}
	}
	return best, found
}

func Ptr[T any](v T) *T {
	return &v
}
