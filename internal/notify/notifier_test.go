package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/shorts-publisher/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

var scheduled = time.Date(2025, 5, 1, 13, 0, 0, 0, time.UTC)

func sampleEvent() Event {
	return Event{
		Title:       "Tips & <Tricks>",
		VideoID:     "vid-1",
		Description: "Short desc",
		Hashtags:    []string{"#a", "#b"},
		Attempts:    2,
		ScheduledAt: scheduled,
	}
}

type recordingChannel struct {
	name   string
	err    error
	panics bool

	mu     sync.Mutex
	events []Event
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(_ context.Context, event Event) error {
	if c.panics {
		panic("boom")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func TestNotifier_FanOutSwallowsFailures(t *testing.T) {
	ok := &recordingChannel{name: "ok"}
	failing := &recordingChannel{name: "failing", err: errors.New("unreachable")}
	panicking := &recordingChannel{name: "panicking", panics: true}

	n := NewNotifier(ok, failing, panicking)
	assert.NotPanics(t, func() { n.Notify(context.Background(), sampleEvent()) })

	assert.Len(t, ok.events, 1)
	assert.Len(t, failing.events, 1)
}

func TestNotifier_NilAndEmpty(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() { n.Notify(context.Background(), sampleEvent()) })
	assert.NotPanics(t, func() { NewNotifier().Notify(context.Background(), sampleEvent()) })
}

func TestFromConfig_SkipsChannelsWithoutCredentials(t *testing.T) {
	n := FromConfig(config.NotificationConfig{
		Targets: []config.NotificationTarget{
			{Type: config.NotifyEmail, Value: "a@example.com"},
			{Type: config.NotifyDiscord, Value: "https://discord.example/webhook"},
			{Type: config.NotifyTelegram, Value: "123"},
		},
	})
	require.Len(t, n.channels, 1)
	assert.Equal(t, "discord", n.channels[0].Name())

	n = FromConfig(config.NotificationConfig{
		Targets: []config.NotificationTarget{
			{Type: config.NotifyEmail, Value: "a@example.com"},
			{Type: config.NotifyTelegram, Value: "123"},
		},
		EmailFrom:        "bot@example.com",
		SMTPHost:         "smtp.example.com",
		SMTPPort:         587,
		TelegramBotToken: "token",
	})
	require.Len(t, n.channels, 2)
	assert.Equal(t, "email", n.channels[0].Name())
	assert.Equal(t, "telegram", n.channels[1].Name())
}

func TestDiscordChannel_Send(t *testing.T) {
	var payload struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	published := scheduled.Add(time.Hour)
	event := sampleEvent()
	event.PublishedAt = &published

	err := NewDiscordChannel(server.URL, server.Client()).Send(context.Background(), event)
	require.NoError(t, err)

	require.Len(t, payload.Embeds, 1)
	embed := payload.Embeds[0]
	assert.Equal(t, "Tips & <Tricks>", embed.Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid-1", embed.URL)
	assert.Equal(t, discordColor, embed.Color)
	require.Len(t, embed.Fields, 4)
	assert.Equal(t, "2025-05-01T13:00:00Z", embed.Fields[0].Value)
	assert.Equal(t, "Published", embed.Fields[1].Value)
	assert.Equal(t, "2", embed.Fields[2].Value)
	assert.Equal(t, "#a #b", embed.Fields[3].Value)
}

func TestDiscordChannel_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewDiscordChannel(server.URL, server.Client()).Send(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestTelegramChannel_Send(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botsecret/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	channel := NewTelegramChannel("secret", "42", server.Client())
	channel.endpoint = server.URL

	require.NoError(t, channel.Send(context.Background(), sampleEvent()))
	assert.Equal(t, "42", payload["chat_id"])
	assert.Equal(t, "HTML", payload["parse_mode"])
	assert.Equal(t, true, payload["disable_web_page_preview"])
	text, _ := payload["text"].(string)
	assert.Contains(t, text, "<b>Tips &amp; &lt;Tricks&gt;</b>")
	assert.Contains(t, text, "Pending publish")
}

type fakeSender struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeSender) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	f.sent = append(f.sent, messages...)
	return f.err
}

func TestEmailChannel_Send(t *testing.T) {
	sender := &fakeSender{}
	channel := NewEmailChannel("ops@example.com", EmailSettings{From: "bot@example.com", Host: "smtp.example.com", Port: 587})
	channel.dial = func() (mailSender, error) { return sender, nil }

	require.NoError(t, channel.Send(context.Background(), sampleEvent()))
	require.Len(t, sender.sent, 1)

	var buf bytes.Buffer
	_, err := sender.sent[0].WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "ops@example.com")
	assert.Contains(t, raw, "bot@example.com")
	assert.Contains(t, raw, "Short uploaded: Tips & <Tricks>")
}

func TestEmailChannel_SendError(t *testing.T) {
	channel := NewEmailChannel("ops@example.com", EmailSettings{From: "bot@example.com", Host: "smtp.example.com", Port: 587})
	channel.dial = func() (mailSender, error) { return &fakeSender{err: errors.New("refused")}, nil }

	err := channel.Send(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestEmailChannel_InvalidRecipient(t *testing.T) {
	channel := NewEmailChannel("not an address", EmailSettings{From: "bot@example.com"})
	_, err := channel.buildMessage(sampleEvent())
	assert.Error(t, err)
}

func TestEmailBody(t *testing.T) {
	body := emailBody(sampleEvent())
	assert.Contains(t, body, "<strong>Tips &amp; &lt;Tricks&gt;</strong>")
	assert.Contains(t, body, "Published: pending")
	assert.Contains(t, body, "https://www.youtube.com/watch?v=vid-1")
}
