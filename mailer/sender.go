package mailer

import (
	"fmt"

	"github.com/ft-transcendence/server/config"
	"gopkg.in/gomail.v2"
)

// Sender delivers account emails. Abstracted so tests can stub SMTP.
type Sender interface {
	Send2FACode(to, nick, code string) error
}

// SMTPSender delivers mail through a plain SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func New(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *SMTPSender) Send2FACode(to, nick, code string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Your two-factor authentication code")
	m.SetBody("text/html", fmt.Sprintf(
		"<p>Hi %s,</p><p>Your sign-in code is <b>%s</b>. It expires in a few minutes.</p>",
		nick, code))
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send 2fa code: %w", err)
	}
	return nil
}
