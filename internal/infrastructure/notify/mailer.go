package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/config"
	"github.com/nexuscrm/kernel/internal/domain/ports"
)

// SMTPMailer delivers sendEmail actions through an SMTP relay.
type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

// NewSMTPMailer creates a mailer for the configured relay
func NewSMTPMailer(cfg config.SMTPConfig, logger *zap.Logger) (*SMTPMailer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("smtp host is not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPMailer{cfg: cfg, logger: logger}, nil
}

func (m *SMTPMailer) buildMsg(msg ports.EmailMessage) (*mail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, errors.New("email has no recipients")
	}
	out := mail.NewMsg()
	if err := out.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.cfg.From, err)
	}
	if err := out.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	if len(msg.Cc) > 0 {
		if err := out.Cc(msg.Cc...); err != nil {
			return nil, fmt.Errorf("invalid cc recipient: %w", err)
		}
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Body)
	out.SetCharset(mail.CharsetUTF8)
	return out, nil
}

// Send renders and delivers one message.
func (m *SMTPMailer) Send(ctx context.Context, msg ports.EmailMessage) error {
	out, err := m.buildMsg(msg)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password))
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("📧 Email sent", zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// LogMailer records emails in the log when no relay is configured.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a mailer that only logs
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Send logs the message and reports success.
func (m *LogMailer) Send(_ context.Context, msg ports.EmailMessage) error {
	if len(msg.To) == 0 {
		return errors.New("email has no recipients")
	}
	m.logger.Info("📧 Email (smtp disabled)",
		zap.Strings("to", msg.To),
		zap.Strings("cc", msg.Cc),
		zap.String("subject", msg.Subject))
	return nil
}

// NewMailer picks the SMTP relay when configured and the log mailer otherwise.
func NewMailer(cfg config.SMTPConfig, logger *zap.Logger) ports.Mailer {
	if mailer, err := NewSMTPMailer(cfg, logger); err == nil {
		return mailer
	}
	return NewLogMailer(logger)
}
