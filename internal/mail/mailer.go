// Package mail delivers password reset tokens. Delivery failures are the
// caller's to log; nothing here may block an auth flow.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

type Sender interface {
	SendPasswordReset(ctx context.Context, email string, token string) error
}

// SMTPSender sends real mail over plain-auth SMTP.
type SMTPSender struct {
	addr        string
	auth        smtp.Auth
	from        string
	frontendURL string
}

func NewSMTPSender(host string, port int, user string, pass string, from string, frontendURL string) *SMTPSender {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, pass, host)
	}

	return &SMTPSender{
		addr:        fmt.Sprintf("%s:%d", host, port),
		auth:        auth,
		from:        from,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

func (s *SMTPSender) SendPasswordReset(_ context.Context, email string, token string) error {
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", email)
	msg.WriteString("Subject: Password Reset Request\r\n")
	msg.WriteString("\r\n")
	msg.WriteString("You recently requested to reset your password.\r\n\r\n")
	fmt.Fprintf(&msg, "Click this link to reset it:\r\n%s\r\n\r\n", resetURL)
	msg.WriteString("This link will expire in 1 hour.\r\n\r\n")
	msg.WriteString("If you didn't request a password reset, please ignore this email.\r\n")

	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{email}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send password reset mail: %w", err)
	}
	return nil
}

// LogSender is used outside production: it logs the reset link instead of
// sending anything.
type LogSender struct {
	frontendURL string
}

func NewLogSender(frontendURL string) *LogSender {
	return &LogSender{frontendURL: strings.TrimRight(frontendURL, "/")}
}

func (s *LogSender) SendPasswordReset(_ context.Context, email string, token string) error {
	slog.Info("password reset token (dev mode)",
		"email", email,
		"reset_url", fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token))
	return nil
}
