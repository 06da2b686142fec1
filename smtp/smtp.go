package smtp

import (
	"context"

	"gopkg.in/gomail.v2"

	"github.com/divanjapones/notifier"
)

const provider = "smtp"

// Sender delivers a composed message. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer sends email through an SMTP relay
type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// NewSender builds the dialer for each send. Defaults to gomail.NewDialer.
	NewSender func(host string, port int, username, password string) Sender
}

// NewMailer returns new SMTP mailer
func NewMailer(config *notifier.Config) *Mailer {
	return &Mailer{
		Host:     config.SMTP.Host,
		Port:     config.SMTP.Port,
		Username: config.SMTP.Username,
		Password: config.SMTP.Password,
		From:     config.SMTP.From,
	}
}

func (m *Mailer) validate() error {
	var missing []string
	if m.Host == "" {
		missing = append(missing, "SMTP_HOST")
	}
	if m.Port == 0 {
		missing = append(missing, "SMTP_PORT")
	}
	if m.Username == "" {
		missing = append(missing, "SMTP_USERNAME")
	}
	if m.Password == "" {
		missing = append(missing, "SMTP_PASSWORD")
	}
	if m.From == "" {
		missing = append(missing, "SMTP_FROM")
	}
	if len(missing) > 0 {
		return &notifier.EmailConfigError{Provider: provider, Missing: missing}
	}
	return nil
}

// SendEmail sends one message. Port 465 uses implicit TLS.
func (m *Mailer) SendEmail(_ context.Context, msg *notifier.Message) (*notifier.Receipt, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	to := msg.To
	if to == "" {
		to = m.From
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.From)
	gm.SetHeader("To", to)
	if len(msg.Bcc) > 0 {
		gm.SetHeader("Bcc", msg.Bcc...)
	}
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Text)
	gm.AddAlternative("text/html", msg.HTML)

	newSender := m.NewSender
	if newSender == nil {
		newSender = func(host string, port int, username, password string) Sender {
			return gomail.NewDialer(host, port, username, password)
		}
	}

	if err := newSender(m.Host, m.Port, m.Username, m.Password).DialAndSend(gm); err != nil {
		return nil, &notifier.EmailDeliveryError{Provider: provider, Err: err}
	}

	return &notifier.Receipt{
		Provider: provider,
		Accepted: 1 + len(msg.Bcc),
	}, nil
}
