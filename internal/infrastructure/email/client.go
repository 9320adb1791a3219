// Package email provides the email client for sending verification emails.
package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/email/templates"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/resendlabs/resend-go"
)

// ErrNotConfigured is returned by NewResendClient when no API key is set.
var ErrNotConfigured = errors.New("email delivery not configured")

// Mailer sends the verification emails. Tests substitute an in-memory
// implementation.
type Mailer interface {
	SendVerificationCode(ctx context.Context, toEmail, code string, ttl time.Duration) error
	SendMagicLink(ctx context.Context, toEmail, linkURL string, ttl time.Duration) error
}

// Config holds the Resend credentials and sender identity.
type Config struct {
	APIKey    string
	FromEmail string
	FromName  string
	BrandName string
}

// ResendClient is the Mailer backed by the Resend API.
type ResendClient struct {
	client *resend.Client
	cfg    Config
	logger *logging.ChanneledLogger
}

// NewResendClient creates a client. It fails with ErrNotConfigured when the
// API key is empty so that callers can report the boundary as unavailable.
func NewResendClient(cfg Config, logger *logging.ChanneledLogger) (*ResendClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.FromEmail == "" {
		cfg.FromEmail = "noreply@signals.example"
	}
	if cfg.FromName == "" {
		cfg.FromName = "Signals"
	}
	if cfg.BrandName == "" {
		cfg.BrandName = cfg.FromName
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &ResendClient{client: resend.NewClient(cfg.APIKey), cfg: cfg, logger: logger}, nil
}

// SendVerificationCode composes and sends the code email.
func (c *ResendClient) SendVerificationCode(ctx context.Context, toEmail, code string, ttl time.Duration) error {
	subject, html := templates.GetVerificationCodeEmail(templates.VerificationCodeProps{
		BrandName:      c.cfg.BrandName,
		Code:           code,
		ExpiresMinutes: int(ttl.Minutes()),
	})
	return c.send(ctx, "verification_code", toEmail, subject, html)
}

// SendMagicLink composes and sends the magic link email.
func (c *ResendClient) SendMagicLink(ctx context.Context, toEmail, linkURL string, ttl time.Duration) error {
	subject, html := templates.GetMagicLinkEmail(templates.MagicLinkProps{
		BrandName:      c.cfg.BrandName,
		LinkURL:        linkURL,
		ExpiresMinutes: int(ttl.Minutes()),
	})
	return c.send(ctx, "magic_link", toEmail, subject, html)
}

func (c *ResendClient) send(ctx context.Context, kind, toEmail, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.cfg.FromName, c.cfg.FromEmail),
		To:      []string{toEmail},
		Subject: subject,
		Html:    html,
	}

	// resend-go has no context support; the request timeout comes from its
	// http client.
	sent, err := c.client.Emails.Send(params)
	if err != nil {
		c.logger.Email().Error("Email send failed", "kind", kind, "to", logging.MaskEmail(toEmail), "error", err.Error())
		return fmt.Errorf("failed to send %s email via Resend: %w", kind, err)
	}

	c.logger.Email().Info("Email sent", "kind", kind, "to", logging.MaskEmail(toEmail), "id", sent.Id, "duration", time.Since(start))
	return nil
}
