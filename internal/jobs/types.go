package jobs

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
	StatusFailed    Status = "failed"
)

// MetadataSource records which resolver stage produced a metadata snapshot.
type MetadataSource string

const (
	MetadataFromSidecar  MetadataSource = "file"
	MetadataFromAI       MetadataSource = "ai"
	MetadataFromFilename MetadataSource = "filename"
)

type Metadata struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Hashtags    []string       `json:"hashtags"`
	Tags        []string       `json:"tags"`
	Language    string         `json:"language,omitempty"`
	Source      MetadataSource `json:"source"`
}

// UploadJob is the durable record of one discovered asset moving through the
// upload lifecycle.
type UploadJob struct {
	ID           string     `json:"id"`
	SourceKey    string     `json:"source_key"`
	Bucket       string     `json:"bucket"`
	Status       Status     `json:"status"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	Metadata     Metadata   `json:"metadata"`
	Attempts     int        `json:"attempts"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	VideoID      string     `json:"video_id,omitempty"`
	ThumbnailKey string     `json:"thumbnail_key,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
}

type RunDetail struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// RunSummary is the immutable record of one pipeline invocation.
type RunSummary struct {
	Discovered int         `json:"discovered"`
	Scheduled  int         `json:"scheduled"`
	Uploaded   int         `json:"uploaded"`
	Failed     int         `json:"failed"`
	Timestamp  time.Time   `json:"timestamp"`
	Details    []RunDetail `json:"details"`
}

// Patch carries a partial update. Nil fields are left untouched.
type Patch struct {
	SourceKey    *string
	Bucket       *string
	Status       *Status
	ScheduledAt  *time.Time
	Metadata     *Metadata
	Attempts     *int
	CreatedAt    *time.Time
	VideoID      *string
	ThumbnailKey *string
	ErrorMessage *string
	PublishedAt  *time.Time
}
