package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/MimeLyc/shorts-publisher/internal/jobs"
	"github.com/MimeLyc/shorts-publisher/internal/library"
	"github.com/MimeLyc/shorts-publisher/internal/media"
	"github.com/MimeLyc/shorts-publisher/internal/notify"
	"github.com/MimeLyc/shorts-publisher/internal/publish"
	"github.com/MimeLyc/shorts-publisher/internal/slot"
	"github.com/MimeLyc/shorts-publisher/pkg/log"
	"golang.org/x/sync/errgroup"
)

const (
	interruptedMessage = "upload interrupted"
	videoIDKey         = "video_id"
)

// MetadataResolver derives publishing metadata for an asset. It never fails.
type MetadataResolver interface {
	Resolve(ctx context.Context, key string, sidecar string) jobs.Metadata
}

// Notifier delivers success events. Delivery failures stay inside it.
type Notifier interface {
	Notify(ctx context.Context, event notify.Event)
}

// Dependencies are the collaborators of an Engine. Thumbnailer and Notifier
// may be nil.
type Dependencies struct {
	Store       jobs.Store
	Source      library.Source
	Resolver    MetadataResolver
	Scheduler   *slot.Scheduler
	Thumbnailer media.Thumbnailer
	Publisher   publish.Publisher
	Notifier    Notifier
}

type Options struct {
	MaxUploadsPerRun     int
	MaxRetryAttempts     int
	DiscoveryConcurrency int
	// PublicVisibility makes published_at the upload time instead of the
	// scheduled time.
	PublicVisibility bool
}

// Engine runs one discovery and upload cycle per Run call.
type Engine struct {
	deps Dependencies
	opts Options
	now  func() time.Time
}

func NewEngine(deps Dependencies, opts Options) *Engine {
	if opts.MaxUploadsPerRun < 1 {
		opts.MaxUploadsPerRun = 1
	}
	if opts.MaxRetryAttempts < 1 {
		opts.MaxRetryAttempts = 1
	}
	if opts.DiscoveryConcurrency < 1 {
		opts.DiscoveryConcurrency = 1
	}
	return &Engine{deps: deps, opts: opts, now: time.Now}
}

// Run discovers new assets, uploads due jobs and appends exactly one run
// summary. Per-asset and per-job failures are recorded, not returned; the
// error reports store failures that prevented parts of the run.
func (e *Engine) Run(ctx context.Context) (*jobs.RunSummary, error) {
	started := e.now()
	log.Info("Pipeline run started")

	summary := &jobs.RunSummary{Details: make([]jobs.RunDetail, 0)}
	var errs []error

	discovered, err := e.discover(ctx)
	if err != nil {
		logError(err)
		errs = append(errs, err)
	}
	summary.Discovered = discovered
	summary.Scheduled = discovered

	if err := e.recoverInterrupted(ctx); err != nil {
		logError(err)
		errs = append(errs, err)
	}

	due, err := e.selectDue(ctx)
	if err != nil {
		logError(err)
		errs = append(errs, err)
	}
	for _, job := range due {
		detail := e.processSafely(ctx, job)
		if detail.Status == jobs.StatusUploaded {
			summary.Uploaded++
		} else {
			summary.Failed++
		}
		summary.Details = append(summary.Details, detail)
	}

	summary.Timestamp = e.now().UTC()
	if err := e.deps.Store.AppendRunSummary(ctx, *summary); err != nil {
		err = WrapError(err, ErrStore, "append run summary")
		logError(err)
		errs = append(errs, err)
	}

	log.Info("Pipeline run finished in %s: discovered=%d uploaded=%d failed=%d",
		e.now().Sub(started).Round(time.Millisecond), summary.Discovered, summary.Uploaded, summary.Failed)
	return summary, errors.Join(errs...)
}

type candidate struct {
	asset    library.Asset
	id       string
	metadata jobs.Metadata
	ok       bool
}

// discover persists a scheduled job for every asset whose identity is not
// yet known and returns how many were created. Metadata is resolved with
// bounded concurrency; slots are assigned afterwards in listing order.
func (e *Engine) discover(ctx context.Context) (int, error) {
	existing, err := e.deps.Store.ListAll(ctx)
	if err != nil {
		return 0, WrapError(err, ErrStore, "list jobs for discovery")
	}
	known := make(map[string]struct{}, len(existing))
	for _, job := range existing {
		known[job.ID] = struct{}{}
	}

	assets, err := e.deps.Source.List(ctx)
	if err != nil {
		return 0, WrapError(err, ErrDiscovery, "list assets")
	}

	candidates := make([]candidate, 0, len(assets))
	for _, asset := range assets {
		id := jobs.BuildID(asset.Key, asset.Fingerprint, asset.Size)
		if _, ok := known[id]; ok {
			continue
		}
		known[id] = struct{}{}
		candidates = append(candidates, candidate{asset: asset, id: id})
	}
	if len(candidates) == 0 {
		log.Debug("No new assets among %d listed", len(assets))
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(e.opts.DiscoveryConcurrency)
	for i := range candidates {
		c := &candidates[i]
		g.Go(func() error {
			err := SafeExecute(func() error {
				c.metadata = e.deps.Resolver.Resolve(ctx, c.asset.Key, e.readSidecar(ctx, c.asset))
				c.ok = true
				return nil
			})
			if err != nil {
				logError(WrapError(err, ErrMetadata, "resolve metadata").WithContext("key", c.asset.Key))
			}
			return nil
		})
	}
	_ = g.Wait()

	now := e.now()
	after := latestPlanned(existing, now)
	created := 0
	for _, c := range candidates {
		if !c.ok {
			continue
		}
		scheduledAt := e.deps.Scheduler.Next(now, after)
		job := &jobs.UploadJob{
			ID:          c.id,
			SourceKey:   c.asset.Key,
			Bucket:      c.asset.Bucket,
			Status:      jobs.StatusScheduled,
			ScheduledAt: scheduledAt,
			Metadata:    c.metadata,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.deps.Store.Save(ctx, job); err != nil {
			logError(WrapError(err, ErrStore, "save discovered job").WithContext("key", c.asset.Key))
			continue
		}
		after = &scheduledAt
		created++
		log.Info("Scheduled %s (%s) for %s", c.asset.Key, job.Metadata.Title, scheduledAt.Format(time.RFC3339))
	}
	return created, nil
}

func (e *Engine) readSidecar(ctx context.Context, asset library.Asset) string {
	if asset.SidecarKey == "" {
		return ""
	}
	raw, err := e.deps.Source.ReadSidecar(ctx, asset.SidecarKey)
	if err != nil {
		log.Warn("Ignoring unreadable sidecar %s: %v", asset.SidecarKey, err)
		return ""
	}
	return raw
}

// latestPlanned returns the latest future slot already held by a job waiting
// for its first attempt, so new jobs queue behind it.
func latestPlanned(existing []*jobs.UploadJob, now time.Time) *time.Time {
	var latest *time.Time
	for _, job := range existing {
		if job.Status != jobs.StatusScheduled && job.Status != jobs.StatusPending {
			continue
		}
		if !job.ScheduledAt.After(now) {
			continue
		}
		if latest == nil || job.ScheduledAt.After(*latest) {
			at := job.ScheduledAt
			latest = &at
		}
	}
	return latest
}

// recoverInterrupted sends jobs left in uploading by a previous process
// through the failure path.
func (e *Engine) recoverInterrupted(ctx context.Context) error {
	all, err := e.deps.Store.ListAll(ctx)
	if err != nil {
		return WrapError(err, ErrStore, "list jobs for recovery")
	}
	for _, job := range all {
		if job.Status != jobs.StatusUploading {
			continue
		}
		attempts := job.Attempts + 1
		status := jobs.StatusAfterFailure(attempts, e.opts.MaxRetryAttempts)
		_, err := e.deps.Store.UpsertPartial(ctx, job.ID, jobs.Patch{
			Status:       &status,
			Attempts:     &attempts,
			ErrorMessage: jobs.Ptr(interruptedMessage),
		})
		if err != nil {
			logError(WrapError(err, ErrStore, "recover interrupted job").WithContext("id", job.ID))
			continue
		}
		log.Warn("Recovered interrupted upload %s as %s (attempt %d)", job.ID, status, attempts)
	}
	return nil
}

// selectDue returns at most MaxUploadsPerRun retryable due jobs, oldest first.
func (e *Engine) selectDue(ctx context.Context) ([]*jobs.UploadJob, error) {
	due, err := e.deps.Store.ListDue(ctx, e.now())
	if err != nil {
		return nil, WrapError(err, ErrStore, "list due jobs")
	}

	ret := make([]*jobs.UploadJob, 0, len(due))
	for _, job := range due {
		if jobs.Exhausted(job, e.opts.MaxRetryAttempts) || !jobs.CanTransition(job.Status, jobs.StatusUploading) {
			continue
		}
		ret = append(ret, job)
	}
	jobs.SortByCreation(ret)
	if len(ret) > e.opts.MaxUploadsPerRun {
		ret = ret[:e.opts.MaxUploadsPerRun]
	}
	log.Info("%d due jobs selected", len(ret))
	return ret, nil
}

// scratch holds the temp files of one attempt.
type scratch struct {
	videoPath     string
	thumbnailPath string
}

func (s scratch) cleanup() {
	for _, path := range []string{s.videoPath, s.thumbnailPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("Failed to remove temp file %s: %v", path, err)
		}
	}
}

func (e *Engine) processSafely(ctx context.Context, job *jobs.UploadJob) jobs.RunDetail {
	var detail jobs.RunDetail
	files := &scratch{}
	err := SafeExecute(func() error {
		var err error
		detail, err = e.attempt(ctx, job, files)
		return err
	})
	if err != nil {
		files.cleanup()
		return e.fail(ctx, job, err)
	}
	return detail
}

// attempt runs one upload attempt. The returned error means the attempt
// failed and the caller applies the retry policy.
func (e *Engine) attempt(ctx context.Context, job *jobs.UploadJob, files *scratch) (jobs.RunDetail, error) {
	if _, err := e.deps.Store.UpsertPartial(ctx, job.ID, jobs.Patch{Status: jobs.Ptr(jobs.StatusUploading)}); err != nil {
		return jobs.RunDetail{}, WrapError(err, ErrStore, "mark uploading")
	}
	if job.VideoID != "" {
		log.Info("%s was already published as %s, recording the upload", job.ID, job.VideoID)
		return e.markUploaded(ctx, job, files, job.VideoID)
	}
	log.Info("Uploading %s (%s), attempt %d", job.ID, job.SourceKey, job.Attempts+1)

	videoPath, err := e.deps.Source.Download(ctx, job.SourceKey)
	if err != nil {
		return jobs.RunDetail{}, WrapError(err, ErrDownload, "download source")
	}
	files.videoPath = videoPath

	if e.deps.Thumbnailer != nil {
		thumbnailPath, err := e.deps.Thumbnailer.Render(ctx, videoPath, job.ID, job.Metadata)
		if err != nil {
			log.Warn("%v", WrapError(err, ErrThumbnail, "render thumbnail").WithContext("id", job.ID))
		} else {
			files.thumbnailPath = thumbnailPath
		}
	}

	videoID, err := e.deps.Publisher.Publish(ctx, publish.Request{
		VideoPath:     videoPath,
		ThumbnailPath: files.thumbnailPath,
		Metadata:      job.Metadata,
		ScheduledAt:   job.ScheduledAt,
	})
	if err != nil {
		return jobs.RunDetail{}, WrapError(err, ErrUpload, "publish")
	}
	return e.markUploaded(ctx, job, files, videoID)
}

// markUploaded records a published video. When the write fails the video id
// travels in the error so the retry can record it without publishing again.
func (e *Engine) markUploaded(ctx context.Context, job *jobs.UploadJob, files *scratch, videoID string) (jobs.RunDetail, error) {
	attempts := job.Attempts + 1
	publishedAt := job.ScheduledAt
	if e.opts.PublicVisibility {
		publishedAt = e.now()
	}
	patch := jobs.Patch{
		Status:       jobs.Ptr(jobs.StatusUploaded),
		Attempts:     &attempts,
		VideoID:      &videoID,
		PublishedAt:  &publishedAt,
		ErrorMessage: jobs.Ptr(""),
	}
	if files.thumbnailPath != "" {
		patch.ThumbnailKey = jobs.Ptr(filepath.Base(files.thumbnailPath))
	}
	if _, err := e.deps.Store.UpsertPartial(ctx, job.ID, patch); err != nil {
		return jobs.RunDetail{}, WrapError(err, ErrStore, "mark uploaded as "+videoID).WithContext(videoIDKey, videoID)
	}

	e.afterSuccess(ctx, job, files, videoID, attempts)
	return jobs.RunDetail{
		ID:      job.ID,
		Status:  jobs.StatusUploaded,
		Message: "Uploaded as " + videoID,
	}, nil
}

// afterSuccess runs the independent best-effort steps that follow an upload.
// None of them can change the job's status.
func (e *Engine) afterSuccess(ctx context.Context, job *jobs.UploadJob, files *scratch, videoID string, attempts int) {
	files.cleanup()

	if err := e.deps.Source.Archive(ctx, job.SourceKey); err != nil {
		logError(WrapError(err, ErrArchive, "archive source").WithContext("key", job.SourceKey))
	}

	if e.deps.Notifier == nil {
		return
	}
	event := notify.Event{
		Title:       job.Metadata.Title,
		VideoID:     videoID,
		Description: job.Metadata.Description,
		Hashtags:    job.Metadata.Hashtags,
		Attempts:    attempts,
		ScheduledAt: job.ScheduledAt,
	}
	if e.opts.PublicVisibility {
		published := e.now()
		event.PublishedAt = &published
	}
	if err := SafeExecute(func() error {
		e.deps.Notifier.Notify(ctx, event)
		return nil
	}); err != nil {
		logError(WrapError(err, ErrNotify, "notify"))
	}
}

// fail applies the retry policy: one more attempt is counted and the job
// becomes failed once the budget is used, pending otherwise.
func (e *Engine) fail(ctx context.Context, job *jobs.UploadJob, cause error) jobs.RunDetail {
	logError(cause)
	message := jobMessage(cause)
	attempts := job.Attempts + 1
	status := jobs.StatusAfterFailure(attempts, e.opts.MaxRetryAttempts)

	patch := jobs.Patch{
		Status:       &status,
		Attempts:     &attempts,
		ErrorMessage: &message,
	}
	var pErr *PipelineError
	if errors.As(cause, &pErr) {
		if videoID, ok := pErr.Context[videoIDKey].(string); ok && videoID != "" {
			patch.VideoID = &videoID
		}
	}
	_, err := e.deps.Store.UpsertPartial(ctx, job.ID, patch)
	if err != nil {
		logError(WrapError(err, ErrStore, "record failed attempt").WithContext("id", job.ID))
	}
	return jobs.RunDetail{ID: job.ID, Status: status, Message: message}
}
