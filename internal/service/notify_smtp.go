package service

import (
	"context"
	"fmt"
	"log"

	"gopkg.in/gomail.v2"
)

// SMTPTransport sends notifications as plain text email over SMTP
type SMTPTransport struct {
	dialer *gomail.Dialer
	from   string
	debug  bool
}

func NewSMTPTransport(host string, port int, user, password, from string, debug bool) *SMTPTransport {
	if from == "" {
		from = user
	}
	return &SMTPTransport{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   from,
		debug:  debug,
	}
}

// Send dials per message. gomail has no context support, so ctx only guards
// against starting a send after the deadline.
func (t *SMTPTransport) Send(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	message := gomail.NewMessage()
	message.SetHeader("From", t.from)
	message.SetHeader("To", n.To)
	message.SetHeader("Subject", n.Subject)
	message.SetBody("text/plain", n.Text)

	if t.debug {
		log.Printf("[DEBUG] SMTP send: host=%s kind=%s to=%s", t.dialer.Host, n.Kind, n.To)
	}

	if err := t.dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", n.To, err)
	}
	log.Printf("Email sent: kind=%s to=%s", n.Kind, n.To)
	return nil
}
