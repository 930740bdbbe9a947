package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
)

const (
	discordColor        = 6983882
	telegramAPIEndpoint = "https://api.telegram.org"
)

func postJSON(ctx context.Context, client *http.Client, channel, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", channel, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", channel, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", channel, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(channel, resp)
	}
	return nil
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	URL         string              `json:"url"`
	Description string              `json:"description"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields"`
}

type DiscordChannel struct {
	webhook string
	client  *http.Client
}

func NewDiscordChannel(webhook string, client *http.Client) *DiscordChannel {
	return &DiscordChannel{webhook: webhook, client: client}
}

func (c *DiscordChannel) Name() string { return "discord" }

func (c *DiscordChannel) Send(ctx context.Context, event Event) error {
	status := "Queued"
	if event.PublishedAt != nil {
		status = "Published"
	}
	hashtags := strings.Join(event.Hashtags, " ")
	if hashtags == "" {
		hashtags = "-"
	}

	payload := map[string]any{
		"embeds": []discordEmbed{{
			Title:       event.Title,
			URL:         event.WatchURL(),
			Description: event.Description,
			Color:       discordColor,
			Fields: []discordEmbedField{
				{Name: "Scheduled", Value: formatTime(event.ScheduledAt), Inline: true},
				{Name: "Status", Value: status, Inline: true},
				{Name: "Attempts", Value: strconv.Itoa(event.Attempts), Inline: true},
				{Name: "Hashtags", Value: hashtags},
			},
		}},
	}
	return postJSON(ctx, c.client, c.Name(), c.webhook, payload)
}

type TelegramChannel struct {
	endpoint string
	token    string
	chatID   string
	client   *http.Client
}

func NewTelegramChannel(token, chatID string, client *http.Client) *TelegramChannel {
	return &TelegramChannel{endpoint: telegramAPIEndpoint, token: token, chatID: chatID, client: client}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, event Event) error {
	payload := map[string]any{
		"chat_id":                  c.chatID,
		"text":                     telegramMessage(event),
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.endpoint, c.token)
	return postJSON(ctx, c.client, c.Name(), url, payload)
}

func telegramMessage(event Event) string {
	published := "🕒 Pending publish"
	if event.PublishedAt != nil {
		published = "✅ Published: " + formatTime(*event.PublishedAt)
	}
	lines := []string{
		"🎬 <b>" + html.EscapeString(event.Title) + "</b>",
		"🔗 " + event.WatchURL(),
		"⏱ Scheduled: " + formatTime(event.ScheduledAt),
		published,
		"🏷 " + html.EscapeString(strings.Join(event.Hashtags, " ")),
		"📄 " + html.EscapeString(event.Description),
	}
	return strings.Join(lines, "\n")
}
