package mail

import (
	"context"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"

	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

// ResendSender sends through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ResendSender) Send(ctx context.Context, m Message) (string, error) {
	sent, err := s.client.Emails.SendWithContext(ctx, s.request(m))
	if err != nil {
		return "", xerrors.Wrapf(err, "resend %s", m.Category)
	}
	return sent.Id, nil
}

func (s *ResendSender) request(m Message) *resend.SendEmailRequest {
	req := &resend.SendEmailRequest{
		From:    s.from,
		To:      m.To,
		Subject: m.Subject,
		Html:    m.HTML,
		ReplyTo: m.ReplyTo,
		// unique per message so mail clients never thread separate submissions
		Headers: map[string]string{"X-Entity-Ref-ID": uuid.NewString()},
	}
	if m.Category != "" {
		req.Tags = []resend.Tag{{Name: "category", Value: m.Category}}
	}
	return req
}
