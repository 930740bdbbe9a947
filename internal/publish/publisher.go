package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MimeLyc/shorts-publisher/internal/config"
	"github.com/MimeLyc/shorts-publisher/internal/jobs"
	"github.com/MimeLyc/shorts-publisher/pkg/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

var ErrMissingCredentials = errors.New("youtube upload credentials are not configured")

// Request is one video to publish.
type Request struct {
	VideoPath     string
	ThumbnailPath string
	Metadata      jobs.Metadata
	ScheduledAt   time.Time
}

// Publisher uploads a video and returns the platform id.
type Publisher interface {
	Publish(ctx context.Context, req Request) (string, error)
}

// YouTubePublisher uploads through the YouTube Data API using an OAuth
// refresh token.
type YouTubePublisher struct {
	service    *youtube.Service
	categoryID string
	privacy    config.Privacy
}

// NewYouTubePublisher builds the publisher. Without credentials it is still
// returned, and every Publish call fails with ErrMissingCredentials.
func NewYouTubePublisher(ctx context.Context, cfg config.YouTubeConfig, opts ...option.ClientOption) (*YouTubePublisher, error) {
	p := &YouTubePublisher{categoryID: cfg.CategoryID, privacy: cfg.Privacy}
	if !cfg.HasUploadCredentials() {
		log.Warn("YouTube upload credentials missing, uploads will fail")
		return p, nil
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}
	tokens := oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	opts = append([]option.ClientOption{option.WithTokenSource(tokens)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube client: %w", err)
	}
	p.service = service
	return p, nil
}

func newYouTubePublisher(service *youtube.Service, cfg config.YouTubeConfig) *YouTubePublisher {
	return &YouTubePublisher{service: service, categoryID: cfg.CategoryID, privacy: cfg.Privacy}
}

// Public reports whether uploads go live immediately.
func (p *YouTubePublisher) Public() bool {
	return p.privacy == config.PrivacyPublic
}

// Publish inserts the video then sets its thumbnail. A thumbnail failure is
// logged and does not fail the upload.
func (p *YouTubePublisher) Publish(ctx context.Context, req Request) (string, error) {
	if p.service == nil {
		return "", ErrMissingCredentials
	}

	f, err := os.Open(req.VideoPath)
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	video, err := p.service.Videos.
		Insert([]string{"snippet", "status"}, p.buildVideo(req)).
		Media(f).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("videos.insert: %w", err)
	}
	if video.Id == "" {
		return "", fmt.Errorf("videos.insert returned no video id")
	}
	log.Info("Uploaded %s as %s", req.Metadata.Title, video.Id)

	if req.ThumbnailPath != "" {
		if err := p.setThumbnail(ctx, video.Id, req.ThumbnailPath); err != nil {
			log.Warn("Failed to set thumbnail for %s: %v", video.Id, err)
		}
	}
	return video.Id, nil
}

func (p *YouTubePublisher) setThumbnail(ctx context.Context, videoID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = p.service.Thumbnails.Set(videoID).Media(f).Context(ctx).Do()
	return err
}

func (p *YouTubePublisher) buildVideo(req Request) *youtube.Video {
	description := req.Metadata.Description
	if len(req.Metadata.Hashtags) > 0 {
		description += "\n\n" + strings.Join(req.Metadata.Hashtags, " ")
	}

	status := &youtube.VideoStatus{
		PrivacyStatus:           string(p.privacy),
		SelfDeclaredMadeForKids: false,
		ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
	}
	if p.privacy == config.PrivacyPrivate && !req.ScheduledAt.IsZero() {
		status.PublishAt = req.ScheduledAt.UTC().Format(time.RFC3339)
	}

	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:           req.Metadata.Title,
			Description:     description,
			Tags:            req.Metadata.Tags,
			CategoryId:      p.categoryID,
			DefaultLanguage: req.Metadata.Language,
		},
		Status: status,
	}
}
