package mailer

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer sends plain-text email.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type smtpMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTP returns nil when no relay host is configured.
func NewSMTP(cfg SMTPConfig) Mailer {
	if cfg.Host == "" {
		return nil
	}
	return &smtpMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *smtpMailer) SendEmail(to, subject, body string) error {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("smtp: header injection in recipient or subject")
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		m.cfg.From, to, subject, body)
	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := m.send(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func VerificationMessage(code string, ttlMinutes int) (subject, body string) {
	subject = "Your verification code"
	body = fmt.Sprintf("Your email verification code is %s.\r\nIt expires in %d minutes.\r\n", code, ttlMinutes)
	return subject, body
}
