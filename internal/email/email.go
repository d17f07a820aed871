package email

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"

	"github.com/mrz1836/postmark"

	"fleetshare.app/cloud/internal/logger"
)

var (
	ErrMissingConfig = errors.New("email configuration missing")
	ErrSendFailed    = errors.New("failed to send email")
)

// Sender delivers a plain-text message. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Settings struct {
	Service              string // "smtp", "postmark" or "log"
	From                 string
	SMTPHost             string
	SMTPPort             string
	SMTPUsername         string
	SMTPPassword         string
	PostmarkServerToken  string
	PostmarkAccountToken string
}

// New builds the sender selected by Settings.Service.
func New(s Settings) (Sender, error) {
	switch s.Service {
	case "smtp":
		return NewSMTPSender(s)
	case "postmark":
		return NewPostmarkSender(s)
	case "log", "":
		return LogSender{}, nil
	default:
		return nil, fmt.Errorf("unknown email service %q", s.Service)
	}
}

type SMTPSender struct {
	host     string
	port     string
	username string
	password string
	from     string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(s Settings) (*SMTPSender, error) {
	if s.SMTPHost == "" || s.SMTPPort == "" || s.SMTPUsername == "" || s.SMTPPassword == "" {
		return nil, fmt.Errorf("%w: SMTP_HOST, SMTP_PORT, SMTP_USERNAME and SMTP_PASSWORD are required", ErrMissingConfig)
	}
	from := s.From
	if from == "" {
		from = s.SMTPUsername
	}
	return &SMTPSender{
		host:     s.SMTPHost,
		port:     s.SMTPPort,
		username: s.SMTPUsername,
		password: s.SMTPPassword,
		from:     from,
		sendMail: smtp.SendMail,
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	auth := smtp.PlainAuth("", s.username, s.password, s.host)

	msg := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", s.from, to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	if err := s.sendMail(addr, auth, s.from, []string{to}, msg); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}

type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

type PostmarkSender struct {
	client postmarkAPI
	from   string
}

func NewPostmarkSender(s Settings) (*PostmarkSender, error) {
	if s.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: POSTMARK_SERVER_TOKEN is required", ErrMissingConfig)
	}
	if s.From == "" {
		return nil, fmt.Errorf("%w: EMAIL_FROM is required", ErrMissingConfig)
	}
	return &PostmarkSender{
		client: postmark.NewClient(s.PostmarkServerToken, s.PostmarkAccountToken),
		from:   s.From,
	}, nil
}

func (p *PostmarkSender) Send(ctx context.Context, to, subject, body string) error {
	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:     p.from,
		To:       to,
		Subject:  subject,
		TextBody: body,
		Tag:      "trial",
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

// LogSender only logs messages. Used in development and when no provider is
// configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, subject, body string) error {
	logger.Info("Email not sent (log sender)", map[string]interface{}{
		"to":      to,
		"subject": subject,
		"length":  len(body),
	})
	return nil
}
