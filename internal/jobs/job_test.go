package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildID_StableForUnchangedAsset(t *testing.T) {
	a := BuildID("clips/a.mp4", "etag-1", 1024)
	b := BuildID("clips/a.mp4", "etag-1", 1024)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestBuildID_SensitiveToFingerprintAndSize(t *testing.T) {
	base := BuildID("clips/a.mp4", "etag-1", 1024)

	assert.NotEqual(t, base, BuildID("clips/a.mp4", "etag-2", 1024))
	assert.NotEqual(t, base, BuildID("clips/a.mp4", "etag-1", 1025))
	assert.NotEqual(t, base, BuildID("clips/b.mp4", "etag-1", 1024))
}

func TestPatch_ApplyToMergesOnlySetFields(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(time.Hour)
	job := &UploadJob{
		ID:          "job-1",
		SourceKey:   "a.mp4",
		Status:      StatusScheduled,
		ScheduledAt: created.Add(2 * time.Hour),
		Metadata:    Metadata{Title: "Hello"},
		CreatedAt:   created,
		UpdatedAt:   created,
	}

	Patch{
		Status:   Ptr(StatusUploading),
		Attempts: Ptr(1),
	}.ApplyTo(job, now)

	assert.Equal(t, StatusUploading, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "a.mp4", job.SourceKey)
	assert.Equal(t, "Hello", job.Metadata.Title)
	assert.Equal(t, created, job.CreatedAt)
	assert.Equal(t, now, job.UpdatedAt)
	assert.Nil(t, job.PublishedAt)
}

func TestNewFromPatch_SynthesizesRecord(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	job := NewFromPatch("job-9", Patch{ErrorMessage: Ptr("boom")}, now)

	require.NotNil(t, job)
	assert.Equal(t, "job-9", job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, "boom", job.ErrorMessage)
	assert.Equal(t, now, job.CreatedAt)
	assert.Equal(t, now, job.UpdatedAt)
}

func TestClone_DoesNotShareSlices(t *testing.T) {
	published := time.Now()
	job := &UploadJob{
		ID:          "job-1",
		Metadata:    Metadata{Hashtags: []string{"#a"}, Tags: []string{"a"}},
		PublishedAt: &published,
	}

	cp := Clone(job)
	cp.Metadata.Hashtags[0] = "#b"
	*cp.PublishedAt = published.Add(time.Hour)

	assert.Equal(t, "#a", job.Metadata.Hashtags[0])
	assert.Equal(t, published, *job.PublishedAt)
}

func TestSelectDue_OrdersByCreationThenID(t *testing.T) {
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	t0 := now.Add(-48 * time.Hour)
	all := []*UploadJob{
		{ID: "c", Status: StatusPending, ScheduledAt: t0, CreatedAt: t0.Add(time.Minute)},
		{ID: "b", Status: StatusScheduled, ScheduledAt: t0, CreatedAt: t0},
		{ID: "a", Status: StatusFailed, ScheduledAt: t0, CreatedAt: t0},
		{ID: "d", Status: StatusUploaded, ScheduledAt: t0, CreatedAt: t0},
		{ID: "e", Status: StatusScheduled, ScheduledAt: now.Add(time.Hour), CreatedAt: t0},
	}

	due := SelectDue(all, now)

	ids := make([]string, 0, len(due))
	for _, job := range due {
		ids = append(ids, job.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestEarliestAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	all := []*UploadJob{
		{ID: "past", ScheduledAt: now.Add(-time.Hour)},
		{ID: "exact", ScheduledAt: now},
		{ID: "late", ScheduledAt: now.Add(3 * time.Hour)},
		{ID: "soon", ScheduledAt: now.Add(time.Hour)},
	}

	got, ok := EarliestAfter(all, now)
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Hour), got)

	_, ok = EarliestAfter(all[:2], now)
	assert.False(t, ok)
}
