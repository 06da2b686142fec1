package resend

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/resend/resend-go/v2"

	"github.com/divanjapones/notifier"
)

const (
	provider       = "resend"
	DefaultBaseURL = "https://api.resend.com/"
)

// Mailer sends email through the Resend API
type Mailer struct {
	From   string
	Client *resend.Client
}

// NewMailer returns new Resend mailer
func NewMailer(config *notifier.Config) (*Mailer, error) {
	client := resend.NewCustomClient(&http.Client{Timeout: 30 * time.Second}, config.Resend.APIKey)

	if config.Resend.BaseURL != "" {
		base, err := url.Parse(strings.TrimRight(config.Resend.BaseURL, "/") + "/")
		if err != nil {
			return nil, errors.Wrapf(err, "parse resend base url %s", config.Resend.BaseURL)
		}
		client.BaseURL = base
	}

	return &Mailer{
		From:   config.SMTP.From,
		Client: client,
	}, nil
}

// SendEmail posts one message to the API
func (m *Mailer) SendEmail(ctx context.Context, msg *notifier.Message) (*notifier.Receipt, error) {
	if m.From == "" {
		return nil, &notifier.EmailConfigError{Provider: provider, Missing: []string{"SMTP_FROM"}}
	}

	to := msg.To
	if to == "" {
		to = m.From
	}

	sent, err := m.Client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.From,
		To:      []string{to},
		Bcc:     msg.Bcc,
		Subject: msg.Subject,
		Text:    msg.Text,
		Html:    msg.HTML,
	})
	if err != nil {
		deliveryErr := &notifier.EmailDeliveryError{Provider: provider, Message: err.Error(), Err: err}
		var rateLimited *resend.RateLimitError
		if errors.As(err, &rateLimited) {
			deliveryErr.Status = http.StatusTooManyRequests
		}
		return nil, deliveryErr
	}

	return &notifier.Receipt{
		Provider: provider,
		ID:       sent.Id,
		Accepted: 1 + len(msg.Bcc),
	}, nil
}
