package media

import (
	"context"

	"github.com/MimeLyc/shorts-publisher/internal/jobs"
)

const (
	ThumbnailWidth  = 720
	ThumbnailHeight = 1280
)

// Thumbnailer renders a still for a downloaded video and returns the path of
// the written image.
type Thumbnailer interface {
	Render(ctx context.Context, videoPath string, jobID string, meta jobs.Metadata) (string, error)
}

// NewThumbnailer returns the ffmpeg backed renderer writing into outDir.
func NewThumbnailer(ffmpegPath, outDir, brandColor string) Thumbnailer {
	return NewFfmpeg(ffmpegPath, outDir, brandColor)
}
