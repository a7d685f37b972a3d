package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/account-security/internal/config"
)

type Service interface {
	SendPasswordReset(ctx context.Context, to, name, token string, expiresAt time.Time) error
	SendLockoutNotice(ctx context.Context, to string, lockedUntil time.Time) error
}

// Sender is the part of gomail.Dialer the service needs.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

var resetTemplate = template.Must(template.New("reset").Parse(`<p>Hello {{.Name}},</p>
<p>We received a request to reset your password. Use the link below before {{.ExpiresAt}}:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>If you did not ask for this, you can ignore this message.</p>`))

var lockoutTemplate = template.Must(template.New("lockout").Parse(`<p>Your account was locked after repeated failed sign-in attempts.</p>
<p>You can try again after {{.Until}}, or reset your password at <a href="{{.Link}}">{{.Link}}</a>.</p>
<p>If these attempts were not yours, contact your clinic administrator.</p>`))

type smtpService struct {
	sender   Sender
	from     string
	resetURL string
}

func NewSMTPService(cfg config.SMTPConfig, resetURL string) Service {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return NewService(dialer, cfg.From, resetURL)
}

func NewService(sender Sender, from, resetURL string) Service {
	return &smtpService{sender: sender, from: from, resetURL: resetURL}
}

func (s *smtpService) SendPasswordReset(ctx context.Context, to, name, token string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	link, err := url.Parse(s.resetURL)
	if err != nil {
		return fmt.Errorf("invalid reset url: %w", err)
	}
	q := link.Query()
	q.Set("token", token)
	link.RawQuery = q.Encode()

	var body bytes.Buffer
	err = resetTemplate.Execute(&body, map[string]string{
		"Name":      name,
		"Link":      link.String(),
		"ExpiresAt": expiresAt.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return fmt.Errorf("failed to render reset email: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Password reset")
	m.SetBody("text/html", body.String())

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	return nil
}

func (s *smtpService) SendLockoutNotice(ctx context.Context, to string, lockedUntil time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var body bytes.Buffer
	err := lockoutTemplate.Execute(&body, map[string]string{
		"Until": lockedUntil.UTC().Format(time.RFC1123),
		"Link":  s.resetURL,
	})
	if err != nil {
		return fmt.Errorf("failed to render lockout email: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Account temporarily locked")
	m.SetBody("text/html", body.String())

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send lockout email: %w", err)
	}
	return nil
}
