package notify

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/wneessen/go-mail"
)

type EmailSettings struct {
	From     string
	Host     string
	Port     int
	Username string
	Password string
}

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type EmailChannel struct {
	to       string
	settings EmailSettings
	dial     func() (mailSender, error)
}

func NewEmailChannel(to string, settings EmailSettings) *EmailChannel {
	c := &EmailChannel{to: to, settings: settings}
	c.dial = c.newClient
	return c
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) newClient() (mailSender, error) {
	opts := []mail.Option{mail.WithPort(c.settings.Port)}
	if c.settings.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}
	if c.settings.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.settings.Username),
			mail.WithPassword(c.settings.Password),
		)
	}
	return mail.NewClient(c.settings.Host, opts...)
}

func (c *EmailChannel) Send(ctx context.Context, event Event) error {
	msg, err := c.buildMessage(event)
	if err != nil {
		return err
	}
	client, err := c.dial()
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", c.to, err)
	}
	return nil
}

func (c *EmailChannel) buildMessage(event Event) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(c.settings.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", c.settings.From, err)
	}
	if err := msg.To(c.to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", c.to, err)
	}
	msg.Subject("Short uploaded: " + event.Title)
	msg.SetBodyString(mail.TypeTextHTML, emailBody(event))
	return msg, nil
}

func emailBody(event Event) string {
	published := "pending"
	if event.PublishedAt != nil {
		published = formatTime(*event.PublishedAt)
	}

	var b strings.Builder
	b.WriteString("<strong>" + html.EscapeString(event.Title) + "</strong><br/>\n")
	b.WriteString("Attempts: " + strconv.Itoa(event.Attempts) + "<br/>\n")
	b.WriteString("Scheduled: " + formatTime(event.ScheduledAt) + "<br/>\n")
	b.WriteString("Published: " + published + "<br/>\n")
	b.WriteString(`<a href="` + html.EscapeString(event.WatchURL()) + `">Watch on YouTube</a><br/>` + "\n")
	b.WriteString("<pre>" + html.EscapeString(event.Description) + "</pre>\n")
	b.WriteString("<p>" + html.EscapeString(strings.Join(event.Hashtags, " ")) + "</p>")
	return b.String()
}
