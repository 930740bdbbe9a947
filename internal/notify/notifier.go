package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MimeLyc/shorts-publisher/internal/config"
	"github.com/MimeLyc/shorts-publisher/pkg/log"
	"golang.org/x/sync/errgroup"
)

const requestTimeout = 10 * time.Second

// Event describes one successful upload.
type Event struct {
	Title       string
	VideoID     string
	Description string
	Hashtags    []string
	Attempts    int
	ScheduledAt time.Time
	PublishedAt *time.Time
}

func (e Event) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + e.VideoID
}

// Channel delivers an event to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// Notifier fans an event out to every channel. Delivery errors are logged
// and never returned.
type Notifier struct {
	channels []Channel
}

func NewNotifier(channels ...Channel) *Notifier {
	return &Notifier{channels: channels}
}

// FromConfig builds one channel per configured target. Targets whose channel
// lacks credentials are skipped with a warning.
func FromConfig(cfg config.NotificationConfig) *Notifier {
	client := &http.Client{Timeout: requestTimeout}
	channels := make([]Channel, 0, len(cfg.Targets))
	for _, target := range cfg.Targets {
		switch target.Type {
		case config.NotifyEmail:
			if cfg.SMTPHost == "" || cfg.EmailFrom == "" {
				log.Warn("Skipping email notification to %s: SMTP is not configured", target.Value)
				continue
			}
			channels = append(channels, NewEmailChannel(target.Value, EmailSettings{
				From:     cfg.EmailFrom,
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUser,
				Password: cfg.SMTPPassword,
			}))
		case config.NotifyDiscord:
			channels = append(channels, NewDiscordChannel(target.Value, client))
		case config.NotifyTelegram:
			if cfg.TelegramBotToken == "" {
				log.Warn("Skipping telegram notification to %s: TELEGRAM_BOT_TOKEN is not set", target.Value)
				continue
			}
			channels = append(channels, NewTelegramChannel(cfg.TelegramBotToken, target.Value, client))
		}
	}
	return NewNotifier(channels...)
}

// Notify waits for every channel to finish.
func (n *Notifier) Notify(ctx context.Context, event Event) {
	if n == nil || len(n.channels) == 0 {
		return
	}

	var g errgroup.Group
	for _, channel := range n.channels {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Error("Notification channel %s panicked: %v", channel.Name(), r)
				}
			}()
			if err := channel.Send(ctx, event); err != nil {
				log.Warn("Notification via %s failed: %v", channel.Name(), err)
				return nil
			}
			log.Debug("Notification via %s sent for %s", channel.Name(), event.VideoID)
			return nil
		})
	}
	_ = g.Wait()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func statusError(channel string, resp *http.Response) error {
	return fmt.Errorf("%s responded with %s", channel, resp.Status)
}
