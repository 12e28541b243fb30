package userman

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/alexscott/userman/internal/config"
)

// Mailer delivers a single outbound message. The orchestrator only
// composes messages; delivery is pluggable so tests and callers with
// their own transport can substitute it.
type Mailer interface {
	Send(to, subject, body string, html bool) error
}

// SMTPMailer delivers through a plain SMTP relay.
type SMTPMailer struct {
	cfg config.Mail
}

// NewSMTPMailer builds a mailer from the mail config section.
func NewSMTPMailer(cfg config.Mail) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send relays one message. No authentication is performed; the relay
// is expected to accept local submissions.
func (m *SMTPMailer) Send(to, subject, body string, html bool) error {
	if m.cfg.Host == "" {
		return fmt.Errorf("mail relay host is not configured")
	}

	contentType := "text/plain"
	if html {
		contentType = "text/html"
	}

	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: " + contentType + "; charset=utf-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	if err := smtp.SendMail(addr, nil, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send mail via %s: %w", addr, err)
	}

	return nil
}

// welcomeTemplate is the default welcome message. The placeholders are
// replaced per recipient.
const welcomeTemplate = `Welcome to %brand%!

Your account has been created.

  Username: %username%
  Password: %password%

You can set a new password using this link:

  %uri%
`

// SendEmail delivers an arbitrary message through the configured
// mailer.
func (u *Userman) SendEmail(to, subject, body string, html bool) error {
	if u.mailer == nil {
		return fmt.Errorf("no mailer configured")
	}

	return u.mailer.Send(to, subject, body, html)
}

// SendWelcomeEmail mails the user their credentials plus a password
// reset link carrying a freshly issued token. Users without an email
// address are skipped with an error.
func (u *Userman) SendWelcomeEmail(uid uint64, password string) error {
	user, err := u.aggregate().UserByID(uid)
	if err != nil {
		return err
	}

	if user.Email == "" {
		return fmt.Errorf("user %q has no email address", user.Username)
	}

	token, err := u.GenerateToken(uid, u.cfg.Userman.TokenExpiry, false)
	if err != nil {
		return err
	}

	uri := strings.TrimRight(u.cfg.Userman.HostURL, "/") + "/reset?token=" + token

	replacer := strings.NewReplacer(
		"%brand%", u.cfg.Userman.Brand,
		"%username%", user.Username,
		"%password%", password,
		"%uri%", uri,
	)

	subject := fmt.Sprintf("Your %s account", u.cfg.Userman.Brand)

	if err := u.SendEmail(user.Email, subject, replacer.Replace(welcomeTemplate), false); err != nil {
		return err
	}

	u.callHooks(ActionWelcome, uid)

	return nil
}

// SendWelcomeEmailToAll mails every user with an email address. The
// password placeholder stays blank since stored passwords are hashed.
func (u *Userman) SendWelcomeEmailToAll() error {
	users, err := u.aggregate().AllUsers()
	if err != nil {
		return err
	}

	for i := range users {
		if users[i].Email == "" {
			continue
		}

		if err := u.SendWelcomeEmail(users[i].ID, ""); err != nil {
			log.Warn().Err(err).Str("username", users[i].Username).
				Msg("failed to send welcome email")
		}
	}

	return nil
}
