package mail

import (
	"context"

	"github.com/google/uuid"

	"github.com/ligadeals/ligadeals-web/internal/log"
)

// Categories tag each message for the provider's dashboards.
const (
	CategoryContact    = "contact-form"
	CategoryThankYou   = "thank-you"
	CategoryWelcome    = "newsletter-welcome"
	CategorySubscriber = "newsletter-admin"
)

type Message struct {
	To       []string
	ReplyTo  string
	Subject  string
	HTML     string
	Category string
}

// Sender delivers one message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, m Message) (string, error)
}

// LogSender only logs. It stands in for Resend when no API key is set.
type LogSender struct {
	Logger log.Logger
}

func (s LogSender) Send(ctx context.Context, m Message) (string, error) {
	id := "log-" + uuid.NewString()
	l := s.Logger
	if l == nil {
		l = log.FromContext(ctx)
	}
	l.Info(ctx, "email not sent, no provider configured",
		"id", id,
		"to", m.To,
		"subject", m.Subject,
		"category", m.Category,
	)
	return id, nil
}
