package accounts

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPMailer delivers mail through a plain SMTP relay.
type SMTPMailer struct {
	cfg SMTPConfig
}

var _ Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer builds the gateway from explicit configuration; nothing is
// read from the environment here.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.User, m.cfg.Pass)
	return d.DialAndSend(msg)
}

// Notifier wraps a Mailer with the at-most-once, best-effort contract the
// account flows need: sends run on their own goroutine and failures are
// logged and swallowed, never surfaced to the surrounding transaction.
type Notifier struct {
	mailer Mailer
	logger Logger
}

// NewNotifier creates a notifier with sane defaults.
func NewNotifier(mailer Mailer) *Notifier {
	return &Notifier{
		mailer: mailer,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used for delivery failures.
func (n *Notifier) WithLogger(logger Logger) *Notifier {
	if logger != nil {
		n.logger = logger
	}
	return n
}

func (n *Notifier) send(to, subject, body string) {
	go func() {
		if err := n.mailer.Send(context.Background(), to, subject, body); err != nil {
			n.logger.Warn("email delivery to %s failed: %v", to, err)
		}
	}()
}

// SendVerificationCode delivers the account activation code.
func (n *Notifier) SendVerificationCode(firstName, email, code string) {
	subject := "Verify your email address"
	body := fmt.Sprintf(
		"Hi %s,\n\nYour verification code is: %s\n\nPlease enter this code to activate your account.",
		firstName, code,
	)
	n.send(email, subject, body)
}

// SendPasswordResetCode delivers the password reset code.
func (n *Notifier) SendPasswordResetCode(firstName, email, code string) {
	subject := "Your Account Verification Code"
	body := fmt.Sprintf(
		"Hi %s,\n\nYour One Time Password (OTP) for password reset is: %s\n\nThis code is valid for 5 minutes.",
		firstName, code,
	)
	n.send(email, subject, body)
}
