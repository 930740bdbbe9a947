package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/shorts-publisher/internal/slot"
	"github.com/MimeLyc/shorts-publisher/pkg/icron"
)

// Config holds all application configuration.
// It is built once at startup from the environment and passed explicitly into
// every component constructor; nothing re-reads the environment later.
//
// Environment Variables:
// Assets:
// - STORAGE_BACKEND: local | s3 (default: local)
// - CONTENT_DIR: discovery root for the local backend (default: ./content)
// - ARCHIVE_DIR: where published local assets are moved (default: <CONTENT_DIR>/processed)
// - S3_ENDPOINT, S3_CONTENT_BUCKET, S3_CONTENT_PREFIX, S3_ARCHIVE_PREFIX, S3_USE_SSL
// - AWS_REGION, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY
// - TEMP_DIR: download scratch directory (default: os temp dir)
//
// Persistence:
// - PERSISTENCE_BACKEND: json | redis | sqlite (default: json)
// - DATA_DIR: local data directory (default: ./data)
// - REDIS_URL: required for the redis backend
// - RUN_HISTORY_LIMIT: kept run summaries (default: 50)
//
// Scheduling:
// - UPLOAD_WINDOWS: comma separated HH:MM list (default: 09:00,12:30,18:00)
// - UPLOAD_TIMEZONE: IANA zone (default: America/New_York)
// - MAX_UPLOADS_PER_RUN (default: 3), MAX_RETRY_ATTEMPTS (default: 3)
// - DISCOVERY_CONCURRENCY (default: 4)
//
// Publishing:
// - YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, YOUTUBE_REFRESH_TOKEN, YOUTUBE_API_KEY
// - YOUTUBE_CATEGORY_ID (default: 22), YOUTUBE_PRIVACY_STATUS (default: private)
// - YOUTUBE_REGION_CODE (default: US)
//
// Metadata:
// - LLM_API_KEY or OPENAI_API_KEY, LLM_API_URL, AI_MODEL, LLM_TIMEOUT
// - FALLBACK_HASHTAGS (default: #Shorts,#Trending,#Viral)
// - TRENDING_CACHE_TTL_MINUTES (default: 180)
//
// Notifications:
// - NOTIFICATION_TARGETS: type:value pairs, type is email, discord or telegram
// - EMAIL_FROM, SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASSWORD, TELEGRAM_BOT_TOKEN
//
// Runtime:
// - BRAND_COLOR (default: #6d8cff), HTTP_ADDR (default: :8080)
// - CRON_EXPR (default: */15 * * * *), LOG_LEVEL (default: info)
type Config struct {
	Storage      StorageConfig      `json:"storage"`
	Persistence  PersistenceConfig  `json:"persistence"`
	Schedule     ScheduleConfig     `json:"schedule"`
	YouTube      YouTubeConfig      `json:"youtube"`
	LLM          LLMConfig          `json:"llm"`
	Metadata     MetadataConfig     `json:"metadata"`
	Notification NotificationConfig `json:"notification"`
	Thumbnail    ThumbnailConfig    `json:"thumbnail"`
	HTTP         HTTPConfig         `json:"http"`
	System       SystemConfig       `json:"system"`
}

type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
)

type StorageConfig struct {
	Backend       StorageBackend `json:"backend"`
	ContentDir    string         `json:"content_dir"`
	ArchiveDir    string         `json:"archive_dir"`
	TempDir       string         `json:"temp_dir"`
	Endpoint      string         `json:"endpoint"`
	Bucket        string         `json:"bucket"`
	Prefix        string         `json:"prefix"`
	ArchivePrefix string         `json:"archive_prefix"`
	Region        string         `json:"region"`
	AccessKey     string         `json:"-"`
	SecretKey     string         `json:"-"`
	UseSSL        bool           `json:"use_ssl"`
}

type PersistenceBackend string

const (
	PersistenceJSON   PersistenceBackend = "json"
	PersistenceRedis  PersistenceBackend = "redis"
	PersistenceSQLite PersistenceBackend = "sqlite"
)

type PersistenceConfig struct {
	Backend         PersistenceBackend `json:"backend"`
	DataDir         string             `json:"data_dir"`
	RedisURL        string             `json:"-"`
	RunHistoryLimit int                `json:"run_history_limit"`
}

type ScheduleConfig struct {
	Windows              []slot.Window  `json:"-"`
	RawWindows           string         `json:"windows"`
	Timezone             string         `json:"timezone"`
	Location             *time.Location `json:"-"`
	MaxUploadsPerRun     int            `json:"max_uploads_per_run"`
	MaxRetryAttempts     int            `json:"max_retry_attempts"`
	DiscoveryConcurrency int            `json:"discovery_concurrency"`
}

type Privacy string

const (
	PrivacyPublic   Privacy = "public"
	PrivacyPrivate  Privacy = "private"
	PrivacyUnlisted Privacy = "unlisted"
)

type YouTubeConfig struct {
	ClientID     string  `json:"-"`
	ClientSecret string  `json:"-"`
	RefreshToken string  `json:"-"`
	APIKey       string  `json:"-"`
	CategoryID   string  `json:"category_id"`
	Privacy      Privacy `json:"privacy"`
	RegionCode   string  `json:"region_code"`
}

// HasUploadCredentials reports whether an OAuth refresh flow can be built.
func (c YouTubeConfig) HasUploadCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

type LLMConfig struct {
	APIKey      string  `json:"-"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
}

type MetadataConfig struct {
	FallbackHashtags []string      `json:"fallback_hashtags"`
	TrendingCacheTTL time.Duration `json:"trending_cache_ttl"`
}

type NotificationType string

const (
	NotifyEmail    NotificationType = "email"
	NotifyDiscord  NotificationType = "discord"
	NotifyTelegram NotificationType = "telegram"
)

type NotificationTarget struct {
	Type  NotificationType `json:"type"`
	Value string           `json:"value"`
}

type NotificationConfig struct {
	Targets          []NotificationTarget `json:"targets"`
	EmailFrom        string               `json:"email_from"`
	SMTPHost         string               `json:"smtp_host"`
	SMTPPort         int                  `json:"smtp_port"`
	SMTPUser         string               `json:"-"`
	SMTPPassword     string               `json:"-"`
	TelegramBotToken string               `json:"-"`
}

type ThumbnailConfig struct {
	BrandColor string `json:"brand_color"`
	FFmpegPath string `json:"ffmpeg_path"`
}

type HTTPConfig struct {
	Addr        string `json:"addr"`
	CronExpr    string `json:"cron_expr"`
	UIEnabled   bool   `json:"ui_enabled"`
	UIStaticDir string `json:"ui_static_dir"`
}

type SystemConfig struct {
	LogLevel string `json:"log_level"`
}

// ThumbnailDir is where rendered thumbnails are written.
func (c *Config) ThumbnailDir() string {
	return filepath.Join(c.Persistence.DataDir, "thumbnails")
}

// Option is a function type for configuring Config
type Option func(*Config)

// envReader collects parse failures so every bad variable is reported at once.
type envReader struct {
	errs []error
}

func (r *envReader) string(key, defaultValue string) string {
	return getEnvString(key, defaultValue)
}

func (r *envReader) int(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, value))
		return defaultValue
	}
	return n
}

func (r *envReader) float(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a number", key, value))
		return defaultValue
	}
	return f
}

func (r *envReader) bool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a boolean", key, value))
		return defaultValue
	}
	return b
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	r := &envReader{}

	contentDir := r.string("CONTENT_DIR", "./content")
	dataDir := r.string("DATA_DIR", "./data")

	config := &Config{
		Storage: StorageConfig{
			Backend:       StorageBackend(strings.ToLower(r.string("STORAGE_BACKEND", string(StorageLocal)))),
			ContentDir:    contentDir,
			ArchiveDir:    r.string("ARCHIVE_DIR", filepath.Join(contentDir, "processed")),
			TempDir:       r.string("TEMP_DIR", os.TempDir()),
			Endpoint:      r.string("S3_ENDPOINT", "s3.amazonaws.com"),
			Bucket:        r.string("S3_CONTENT_BUCKET", ""),
			Prefix:        r.string("S3_CONTENT_PREFIX", ""),
			ArchivePrefix: r.string("S3_ARCHIVE_PREFIX", "processed"),
			Region:        r.string("AWS_REGION", ""),
			AccessKey:     r.string("AWS_ACCESS_KEY_ID", ""),
			SecretKey:     r.string("AWS_SECRET_ACCESS_KEY", ""),
			UseSSL:        r.bool("S3_USE_SSL", true),
		},
		Persistence: PersistenceConfig{
			Backend:         PersistenceBackend(strings.ToLower(r.string("PERSISTENCE_BACKEND", string(PersistenceJSON)))),
			DataDir:         dataDir,
			RedisURL:        r.string("REDIS_URL", ""),
			RunHistoryLimit: r.int("RUN_HISTORY_LIMIT", 50),
		},
		Schedule: ScheduleConfig{
			RawWindows:           r.string("UPLOAD_WINDOWS", "09:00,12:30,18:00"),
			Timezone:             r.string("UPLOAD_TIMEZONE", "America/New_York"),
			MaxUploadsPerRun:     r.int("MAX_UPLOADS_PER_RUN", 3),
			MaxRetryAttempts:     r.int("MAX_RETRY_ATTEMPTS", 3),
			DiscoveryConcurrency: r.int("DISCOVERY_CONCURRENCY", 4),
		},
		YouTube: YouTubeConfig{
			ClientID:     r.string("YOUTUBE_CLIENT_ID", ""),
			ClientSecret: r.string("YOUTUBE_CLIENT_SECRET", ""),
			RefreshToken: r.string("YOUTUBE_REFRESH_TOKEN", ""),
			APIKey:       r.string("YOUTUBE_API_KEY", ""),
			CategoryID:   r.string("YOUTUBE_CATEGORY_ID", "22"),
			Privacy:      Privacy(strings.ToLower(r.string("YOUTUBE_PRIVACY_STATUS", string(PrivacyPrivate)))),
			RegionCode:   r.string("YOUTUBE_REGION_CODE", "US"),
		},
		LLM: LLMConfig{
			APIKey:      r.string("LLM_API_KEY", r.string("OPENAI_API_KEY", "")),
			APIURL:      r.string("LLM_API_URL", "https://api.openai.com/v1"),
			Model:       r.string("AI_MODEL", r.string("LLM_MODEL", "gpt-4o-mini")),
			MaxTokens:   r.int("LLM_MAX_TOKENS", 800),
			Temperature: r.float("LLM_TEMPERATURE", 0.7),
			Timeout:     r.int("LLM_TIMEOUT", 30),
		},
		Metadata: MetadataConfig{
			FallbackHashtags: splitList(r.string("FALLBACK_HASHTAGS", "#Shorts,#Trending,#Viral")),
			TrendingCacheTTL: time.Duration(r.int("TRENDING_CACHE_TTL_MINUTES", 180)) * time.Minute,
		},
		Notification: NotificationConfig{
			EmailFrom:        r.string("EMAIL_FROM", ""),
			SMTPHost:         r.string("SMTP_HOST", ""),
			SMTPPort:         r.int("SMTP_PORT", 587),
			SMTPUser:         r.string("SMTP_USER", ""),
			SMTPPassword:     r.string("SMTP_PASSWORD", ""),
			TelegramBotToken: r.string("TELEGRAM_BOT_TOKEN", ""),
		},
		Thumbnail: ThumbnailConfig{
			BrandColor: r.string("BRAND_COLOR", "#6d8cff"),
			FFmpegPath: r.string("FFMPEG_PATH", "ffmpeg"),
		},
		HTTP: HTTPConfig{
			Addr:        r.string("HTTP_ADDR", ":8080"),
			CronExpr:    r.string("CRON_EXPR", "*/15 * * * *"),
			UIEnabled:   r.bool("UI_ENABLED", false),
			UIStaticDir: r.string("UI_STATIC_DIR", "./web/dist"),
		},
		System: SystemConfig{
			LogLevel: r.string("LOG_LEVEL", "info"),
		},
	}

	targets, err := ParseTargets(os.Getenv("NOTIFICATION_TARGETS"))
	if err != nil {
		r.errs = append(r.errs, err)
	}
	config.Notification.Targets = targets

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := errors.Join(append(r.errs, config.validate())...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

var brandColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// validate checks every setting and resolves the parsed forms
// (windows, location). All problems are reported together.
func (c *Config) validate() error {
	var errs []error

	switch c.Storage.Backend {
	case StorageLocal:
		if strings.TrimSpace(c.Storage.ContentDir) == "" {
			errs = append(errs, fmt.Errorf("CONTENT_DIR is required for the local storage backend"))
		}
	case StorageS3:
		if c.Storage.Bucket == "" {
			errs = append(errs, fmt.Errorf("S3_CONTENT_BUCKET is required for the s3 storage backend"))
		}
		if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
			errs = append(errs, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required for the s3 storage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND: unknown backend %q", c.Storage.Backend))
	}

	switch c.Persistence.Backend {
	case PersistenceJSON, PersistenceSQLite:
		if strings.TrimSpace(c.Persistence.DataDir) == "" {
			errs = append(errs, fmt.Errorf("DATA_DIR is required for the %s persistence backend", c.Persistence.Backend))
		}
	case PersistenceRedis:
		if c.Persistence.RedisURL == "" {
			errs = append(errs, fmt.Errorf("REDIS_URL is required for the redis persistence backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("PERSISTENCE_BACKEND: unknown backend %q", c.Persistence.Backend))
	}
	if c.Persistence.RunHistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("RUN_HISTORY_LIMIT must be greater than 0"))
	}

	windows, err := slot.ParseWindows(c.Schedule.RawWindows)
	if err != nil {
		errs = append(errs, fmt.Errorf("UPLOAD_WINDOWS: %w", err))
	}
	c.Schedule.Windows = windows

	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("UPLOAD_TIMEZONE: %w", err))
	}
	c.Schedule.Location = loc

	if c.Schedule.MaxUploadsPerRun < 1 {
		errs = append(errs, fmt.Errorf("MAX_UPLOADS_PER_RUN must be greater than 0"))
	}
	if c.Schedule.MaxRetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("MAX_RETRY_ATTEMPTS must be greater than 0"))
	}
	if c.Schedule.DiscoveryConcurrency < 1 {
		errs = append(errs, fmt.Errorf("DISCOVERY_CONCURRENCY must be greater than 0"))
	}

	switch c.YouTube.Privacy {
	case PrivacyPublic, PrivacyPrivate, PrivacyUnlisted:
	default:
		errs = append(errs, fmt.Errorf("YOUTUBE_PRIVACY_STATUS: must be public, private or unlisted, got %q", c.YouTube.Privacy))
	}

	if c.Metadata.TrendingCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("TRENDING_CACHE_TTL_MINUTES must be greater than 0"))
	}
	if c.LLM.Timeout < 1 {
		errs = append(errs, fmt.Errorf("LLM_TIMEOUT must be greater than 0"))
	}

	if !brandColorPattern.MatchString(c.Thumbnail.BrandColor) {
		errs = append(errs, fmt.Errorf("BRAND_COLOR: expected #rrggbb, got %q", c.Thumbnail.BrandColor))
	}

	if _, err := icron.Parse(c.HTTP.CronExpr); err != nil {
		errs = append(errs, fmt.Errorf("CRON_EXPR: %w", err))
	}

	return errors.Join(errs...)
}

// ParseTargets parses "type:value" pairs separated by commas. The value may
// itself contain colons (webhook URLs).
func ParseTargets(raw string) ([]NotificationTarget, error) {
	ret := make([]NotificationTarget, 0)
	for _, segment := range strings.Split(raw, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		kind, value, ok := strings.Cut(segment, ":")
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			return nil, fmt.Errorf("NOTIFICATION_TARGETS: %q is not a type:value pair", segment)
		}
		target := NotificationTarget{
			Type:  NotificationType(strings.ToLower(strings.TrimSpace(kind))),
			Value: value,
		}
		switch target.Type {
		case NotifyEmail, NotifyDiscord, NotifyTelegram:
		default:
			return nil, fmt.Errorf("NOTIFICATION_TARGETS: unknown type %q", kind)
		}
		ret = append(ret, target)
	}
	return ret, nil
}

func splitList(raw string) []string {
	ret := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ret = append(ret, part)
		}
	}
	return ret
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
