package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_AllowsLifecyclePaths(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
	}{
		{"", StatusScheduled},
		{"", StatusPending},
		{StatusScheduled, StatusUploading},
		{StatusPending, StatusUploading},
		{StatusFailed, StatusUploading},
		{StatusUploading, StatusUploaded},
		{StatusUploading, StatusPending},
		{StatusUploading, StatusFailed},
	}

	for _, tc := range cases {
		assert.True(t, CanTransition(tc.from, tc.to), "%q -> %q", tc.from, tc.to)
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
	}{
		{StatusScheduled, StatusUploaded},
		{StatusPending, StatusFailed},
		{StatusUploaded, StatusUploading},
		{StatusUploaded, StatusPending},
		{"", StatusUploading},
		{"archived", StatusPending},
	}

	for _, tc := range cases {
		assert.False(t, CanTransition(tc.from, tc.to), "%q -> %q", tc.from, tc.to)
	}
}

func TestTransition_BlocksIllegalMove(t *testing.T) {
	job := &UploadJob{ID: "job-1", Status: StatusUploaded}

	err := Transition(job, StatusUploading)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job-1")
	assert.Equal(t, StatusUploaded, job.Status)

	job.Status = StatusScheduled
	require.NoError(t, Transition(job, StatusUploading))
	assert.Equal(t, StatusUploading, job.Status)
}

func TestIsDue(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		status Status
		at     time.Time
		want   bool
	}{
		{"scheduled in past", StatusScheduled, now.Add(-time.Minute), true},
		{"scheduled exactly now", StatusScheduled, now, true},
		{"scheduled in future", StatusScheduled, now.Add(time.Second), false},
		{"pending", StatusPending, now.Add(-time.Hour), true},
		{"failed", StatusFailed, now.Add(-time.Hour), true},
		{"uploading", StatusUploading, now.Add(-time.Hour), false},
		{"uploaded", StatusUploaded, now.Add(-time.Hour), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := &UploadJob{Status: tc.status, ScheduledAt: tc.at}
			assert.Equal(t, tc.want, IsDue(job, now))
		})
	}
}

func TestRetryBudget(t *testing.T) {
	assert.Equal(t, StatusPending, StatusAfterFailure(1, 3))
	assert.Equal(t, StatusPending, StatusAfterFailure(2, 3))
	assert.Equal(t, StatusFailed, StatusAfterFailure(3, 3))

	assert.False(t, Exhausted(&UploadJob{Status: StatusFailed, Attempts: 2}, 3))
	assert.True(t, Exhausted(&UploadJob{Status: StatusFailed, Attempts: 3}, 3))
	assert.False(t, Exhausted(&UploadJob{Status: StatusPending, Attempts: 5}, 3))
}
