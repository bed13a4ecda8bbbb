package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

// Message is a single outgoing HTML email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer opens a fresh SMTP session per message.
type SMTPMailer struct {
	opts SMTPOptions
}

func NewSMTPMailer(opts SMTPOptions) (*SMTPMailer, error) {
	if opts.Host == "" || opts.From == "" {
		return nil, fmt.Errorf("smtp host and from address are required")
	}
	if opts.Port == 0 {
		opts.Port = 587
	}
	return &SMTPMailer{opts: opts}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	email := mail.NewMsg()
	if err := email.From(m.opts.From); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := email.To(msg.To); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	email.Subject(msg.Subject)
	email.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)

	clientOpts := []mail.Option{
		mail.WithPort(m.opts.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if m.opts.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.opts.Username),
			mail.WithPassword(m.opts.Password),
		)
	}

	client, err := mail.NewClient(m.opts.Host, clientOpts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, email); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them. Used when no
// SMTP host is configured.
type LogMailer struct {
	Logger *logrus.Logger
}

func (m LogMailer) Send(_ context.Context, msg Message) error {
	m.Logger.WithFields(logrus.Fields{
		"email_to": msg.To,
		"subject":  msg.Subject,
	}).Info("mail delivery skipped, no smtp host configured")
	return nil
}
