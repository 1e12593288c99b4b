package notify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"dds-registration/internal/config"
	"dds-registration/internal/logger"

	"gopkg.in/gomail.v2"
)

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

type Mail struct {
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// SMTPMailer delivers plain text mail through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.From,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, mail Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(mail.To) == 0 {
		return fmt.Errorf("mail %q has no recipients", mail.Subject)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", mail.To...)
	msg.SetHeader("Subject", mail.Subject)
	msg.SetBody("text/plain", mail.Body)
	for _, a := range mail.Attachments {
		data := a.Data
		msg.Attach(a.Name,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}),
		)
	}
	return m.dialer.DialAndSend(msg)
}

// LogMailer only logs; used when no SMTP host is configured.
type LogMailer struct {
	Logger *logger.Logger
}

func (m LogMailer) Send(_ context.Context, mail Mail) error {
	names := make([]string, len(mail.Attachments))
	for i, a := range mail.Attachments {
		names[i] = a.Name
	}
	m.Logger.Info("NOTIFY", fmt.Sprintf("[MAIL] to=%s subject=%q attachments=%v",
		strings.Join(mail.To, ","), mail.Subject, names))
	return nil
}
