package jobs

import (
	"fmt"
	"time"
)

var allowedTransitions = map[Status]map[Status]bool{
	"": {
		StatusScheduled: true,
		StatusPending:   true,
	},
	StatusScheduled: {
		StatusUploading: true,
	},
	StatusPending: {
		StatusUploading: true,
	},
	StatusFailed: {
		StatusUploading: true,
	},
	StatusUploading: {
		StatusUploaded: true,
		StatusPending:  true,
		StatusFailed:   true,
	},
	StatusUploaded: {},
}

func IsKnownStatus(status Status) bool {
	_, ok := allowedTransitions[status]
	return ok && status != ""
}

func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Transition moves the job to the target status or reports why it cannot.
func Transition(job *UploadJob, to Status) error {
	if !CanTransition(job.Status, to) {
		return fmt.Errorf("invalid upload status transition: %q -> %q (id=%s)", job.Status, to, job.ID)
	}
	job.Status = to
	return nil
}

// IsDue reports whether the job may be attempted at now. Failed jobs are due
// here regardless of their retry budget; see Exhausted.
func IsDue(job *UploadJob, now time.Time) bool {
	switch job.Status {
	case StatusPending, StatusScheduled, StatusFailed:
		return !job.ScheduledAt.After(now)
	default:
		return false
	}
}

// Exhausted reports whether a failed job has used its whole retry budget.
func Exhausted(job *UploadJob, maxAttempts int) bool {
	return job.Status == StatusFailed && job.Attempts >= maxAttempts
}

// StatusAfterFailure returns the status a job takes after a failed attempt,
// given the attempt count already incremented for that attempt.
func StatusAfterFailure(attempts, maxAttempts int) Status {
	if attempts >= maxAttempts {
		return StatusFailed
	}
	return StatusPending
}
