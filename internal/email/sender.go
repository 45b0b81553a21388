package email

import (
	"context"
	"fmt"
	"time"

	"electroshop_backend/internal/logger"

	"gopkg.in/gomail.v2"
)

// Sender отправляет письма покупателям
type Sender interface {
	SendPaymentReceipt(ctx context.Context, r Receipt) error
}

// dialer - часть gomail.Dialer, которую мы используем
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// GomailSender отправляет письма через SMTP (gomail)
type GomailSender struct {
	cfg      *SMTPConfig
	dialer   dialer
	renderer *TemplateManager
}

func NewGomailSender(cfg *SMTPConfig) *GomailSender {
	return &GomailSender{
		cfg:      cfg,
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		renderer: NewTemplateManager(),
	}
}

// NewSender возвращает GomailSender или NoopSender, если SMTP не настроен
func NewSender(cfg *SMTPConfig) Sender {
	if !cfg.Enabled() {
		logger.Warn("SMTP is not configured, payment receipts are disabled")
		return NoopSender{}
	}
	return NewGomailSender(cfg)
}

func (s *GomailSender) SendPaymentReceipt(ctx context.Context, r Receipt) error {
	if r.To == "" {
		return fmt.Errorf("receipt has no recipient")
	}

	body, err := s.renderer.RenderReceipt(r)
	if err != nil {
		return err
	}

	return s.Send(ctx, &Email{
		To:       []string{r.To},
		Subject:  fmt.Sprintf("Payment received for order %s", r.OrderID),
		HTMLBody: body,
	})
}

// Send отправляет письмо
func (s *GomailSender) Send(ctx context.Context, e *Email) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.FromEmail, s.cfg.FromName)
	m.SetHeader("To", e.To...)
	m.SetHeader("Subject", e.Subject)
	if e.Body != "" {
		m.SetBody("text/plain", e.Body)
		if e.HTMLBody != "" {
			m.AddAlternative("text/html", e.HTMLBody)
		}
	} else {
		m.SetBody("text/html", e.HTMLBody)
	}

	start := time.Now()
	err := s.dialer.DialAndSend(m)
	if err != nil {
		logger.CtxWithError(ctx, "Failed to send email", err, "to", e.To, "subject", e.Subject)
		return fmt.Errorf("failed to send email: %w", err)
	}
	logger.CtxDebug(ctx, "Email sent", "to", e.To, "subject", e.Subject, "duration", time.Since(start))
	return nil
}

// NoopSender - письма отключены
type NoopSender struct{}

func (NoopSender) SendPaymentReceipt(ctx context.Context, r Receipt) error {
	logger.CtxDebug(ctx, "Receipt email skipped: SMTP disabled", "order_id", r.OrderID)
	return nil
}
