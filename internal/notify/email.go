// README: SMTP email notifier for student and examiner messages.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

type EmailNotifier struct {
	addr string // host:port
	from string
	auth smtp.Auth
}

func NewEmailNotifier(addr, from string, auth smtp.Auth) *EmailNotifier {
	return &EmailNotifier{addr: addr, from: from, auth: auth}
}

func (e *EmailNotifier) Notify(ctx context.Context, recipient, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := strings.Join([]string{
		"From: " + e.from,
		"To: " + recipient,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(e.addr, e.auth, e.from, []string{recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", recipient, err)
	}
	return nil
}
