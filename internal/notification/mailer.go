package notification

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

// Mail is a plain-text message.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers mail.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// NewMailer picks the backend named in cfg.
func NewMailer(cfg config.MailConfig) Mailer {
	if cfg.Backend == "smtp" {
		return &SMTPMailer{cfg: cfg}
	}
	return LogMailer{}
}

// ThrottledMailer paces deliveries to next with a token bucket shared by the
// whole process.
type ThrottledMailer struct {
	next    Mailer
	limiter *rate.Limiter
}

// Throttle wraps next so at most perSecond mails leave per second, with
// bursts up to burst. A non-positive rate returns next unchanged.
func Throttle(next Mailer, perSecond float64, burst int) Mailer {
	if perSecond <= 0 {
		return next
	}
	return &ThrottledMailer{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))}
}

// Send waits for a slot, then delivers m.
func (t *ThrottledMailer) Send(ctx context.Context, m Mail) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for mail slot: %w", err)
	}
	return t.next.Send(ctx, m)
}

// LogMailer writes mail to the log instead of sending it. The body is only
// logged at debug level.
type LogMailer struct{}

// Send logs m.
func (LogMailer) Send(_ context.Context, m Mail) error {
	logger.Info("mail (log backend)", logger.Email("to", m.To), zap.String("subject", m.Subject))
	logger.Debug("mail body", zap.String("body", m.Body))
	return nil
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	cfg  config.MailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// Send delivers m. Authentication is used only when a username is configured.
func (s *SMTPMailer) Send(ctx context.Context, m Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(s.cfg.SMTPHost, strconv.Itoa(s.cfg.SMTPPort))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	}
	send := s.send
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(addr, auth, s.cfg.From, []string{m.To}, buildMessage(s.cfg.From, m)); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	return nil
}

func buildMessage(from string, m Mail) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + m.To + "\r\n")
	b.WriteString("Subject: " + m.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(b.String())
}
