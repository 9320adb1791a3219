// Package services provides application-level services that orchestrate
// the gate engines and the email verification boundary.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/domain/verification"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clock"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/email"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/performance"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/security"
)

// MagicTokenBytes is the entropy of a magic link token.
const MagicTokenBytes = 32

// Outcome is the typed result of a verification boundary call.
type Outcome string

const (
	OutcomeSent         Outcome = "sent"
	OutcomeVerified     Outcome = "verified"
	OutcomeInvalidEmail Outcome = "invalid_email"
	OutcomeInvalidCode  Outcome = "invalid_code"
	OutcomeExpired      Outcome = "expired"
	OutcomeInvalidToken Outcome = "invalid_token"
	OutcomeExpiredToken Outcome = "expired_token"
	OutcomeUnavailable  Outcome = "unavailable"
	OutcomeFailed       Outcome = "failed"
)

// ErrVerificationUnavailable is returned when the boundary lacks the
// configuration it needs to answer.
var ErrVerificationUnavailable = errors.New("verification boundary not configured")

// VerificationResult holds the outcome of a request or redemption.
type VerificationResult struct {
	Outcome    Outcome    `json:"outcome"`
	Success    bool       `json:"success"`
	Email      string     `json:"email,omitempty"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	Retryable  bool       `json:"retryable,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// EmailStatus is the public status answer. Exists is only true for
// verified addresses.
type EmailStatus struct {
	Verified bool `json:"verified"`
	Exists   bool `json:"exists"`
}

// EmailLookup is the authenticated status answer.
type EmailLookup struct {
	Email      string              `json:"email"`
	Exists     bool                `json:"exists"`
	Verified   bool                `json:"verified"`
	VerifiedAt *time.Time          `json:"verifiedAt,omitempty"`
	Source     verification.Source `json:"source,omitempty"`
}

// DefaultMaxCodeAttempts is the number of wrong guesses a code survives.
const DefaultMaxCodeAttempts = 5

// VerificationConfig holds TTLs and the public magic link endpoint.
type VerificationConfig struct {
	CodeTTL          time.Duration
	MagicLinkTTL     time.Duration
	MagicLinkBaseURL string
	RequestTimeout   time.Duration
	// MaxCodeAttempts retires a code after this many mismatches.
	MaxCodeAttempts int
}

// VerificationService is the server verification boundary. A nil
// repository or mailer makes the affected operations report unavailable.
type VerificationService struct {
	repo        verification.Repository
	mailer      email.Mailer
	clock       clock.Clock
	cfg         VerificationConfig
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewVerificationService creates a new verification service.
func NewVerificationService(repo verification.Repository, mailer email.Mailer, clk clock.Clock, cfg VerificationConfig, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *VerificationService {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 15 * time.Minute
	}
	if cfg.MagicLinkTTL <= 0 {
		cfg.MagicLinkTTL = 15 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.MaxCodeAttempts <= 0 {
		cfg.MaxCodeAttempts = DefaultMaxCodeAttempts
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if perfTracker == nil {
		perfTracker = performance.NewTracker(nil)
	}
	return &VerificationService{repo: repo, mailer: mailer, clock: clk, cfg: cfg, logger: logger, perfTracker: perfTracker}
}

// CheckEmailStatus answers the public status query. It never reports an
// unverified address as existing and degrades to not-verified on any fault.
func (s *VerificationService) CheckEmailStatus(ctx context.Context, address string) EmailStatus {
	marker := s.perfTracker.StartOperation("check_email_status", "")
	defer marker.Complete()

	address = verification.NormalizeEmail(address)
	if !verification.ValidEmail(address) || s.repo == nil {
		return EmailStatus{}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	rec, err := s.repo.FindEmail(ctx, address)
	if err != nil {
		marker.SetError(err)
		s.logger.Verification().Warn("Email status lookup failed, reporting not verified", "email", logging.MaskEmail(address), "error", err.Error())
		return EmailStatus{}
	}
	if rec == nil || !rec.Verified {
		return EmailStatus{}
	}
	return EmailStatus{Verified: true, Exists: true}
}

// LookupEmailStatus is the authenticated variant with the real
// exists/verified distinction.
func (s *VerificationService) LookupEmailStatus(ctx context.Context, address string) (*EmailLookup, error) {
	address = verification.NormalizeEmail(address)
	if s.repo == nil {
		return nil, ErrVerificationUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	rec, err := s.repo.FindEmail(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("lookup email status: %w", err)
	}
	lookup := &EmailLookup{Email: address}
	if rec != nil {
		lookup.Exists = true
		lookup.Verified = rec.Verified
		lookup.VerifiedAt = rec.VerifiedAt
		lookup.Source = rec.Source
	}
	return lookup, nil
}

// RequestCode issues a fresh code for address, replacing any outstanding
// one, and mails it.
func (s *VerificationService) RequestCode(ctx context.Context, address string) *VerificationResult {
	start := s.clock.Now()
	marker := s.perfTracker.StartOperation("request_verification_code", "")
	defer marker.Complete()

	address = verification.NormalizeEmail(address)
	if !verification.ValidEmail(address) {
		return s.finish("request_code", address, start, &VerificationResult{Outcome: OutcomeInvalidEmail, Error: "Invalid email address"})
	}
	if s.repo == nil || s.mailer == nil {
		return s.finish("request_code", address, start, unavailable())
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	code, err := security.GenerateCode()
	if err != nil {
		return s.finish("request_code", address, start, failed(err))
	}
	hash, err := security.HashCode(code)
	if err != nil {
		return s.finish("request_code", address, start, failed(err))
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.cfg.CodeTTL)
	if err := s.repo.EnsureEmail(ctx, address, now); err != nil {
		return s.finish("request_code", address, start, failed(err))
	}
	if err := s.repo.SaveCode(ctx, verification.PendingCode{Email: address, CodeHash: hash, ExpiresAt: expiresAt, CreatedAt: now}); err != nil {
		return s.finish("request_code", address, start, failed(err))
	}
	if err := s.mailer.SendVerificationCode(ctx, address, code, s.cfg.CodeTTL); err != nil {
		return s.finish("request_code", address, start, failed(err))
	}

	return s.finish("request_code", address, start, &VerificationResult{Outcome: OutcomeSent, Success: true, Email: address, ExpiresAt: &expiresAt})
}

// VerifyCode redeems a code. A match deletes the code before the address
// is marked verified; a mismatch leaves it redeemable until
// MaxCodeAttempts mismatches have been recorded.
func (s *VerificationService) VerifyCode(ctx context.Context, address, code string) *VerificationResult {
	start := s.clock.Now()
	marker := s.perfTracker.StartOperation("verify_code", "")
	defer marker.Complete()

	address = verification.NormalizeEmail(address)
	code = strings.TrimSpace(code)
	if !verification.ValidEmail(address) || !security.IsCode(code) {
		return s.finish("verify_code", address, start, &VerificationResult{Outcome: OutcomeInvalidCode, Error: "Invalid code"})
	}
	if s.repo == nil {
		return s.finish("verify_code", address, start, unavailable())
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	pending, err := s.repo.FindCode(ctx, address)
	if err != nil {
		return s.finish("verify_code", address, start, failed(err))
	}
	if pending == nil || pending.Expired(s.clock.Now()) {
		return s.finish("verify_code", address, start, expired())
	}

	ok, err := security.CompareCode(pending.CodeHash, code)
	if err != nil {
		return s.finish("verify_code", address, start, failed(err))
	}
	if !ok {
		exhausted, err := s.repo.RecordCodeMiss(ctx, address, pending.CodeHash, s.cfg.MaxCodeAttempts)
		if err != nil {
			return s.finish("verify_code", address, start, failed(err))
		}
		if exhausted {
			s.logger.Verification().Warn("Verification code retired after repeated misses",
				"email", logging.MaskEmail(address), "attempts", s.cfg.MaxCodeAttempts)
		}
		return s.finish("verify_code", address, start, &VerificationResult{Outcome: OutcomeInvalidCode, Error: "Invalid code"})
	}

	consumed, err := s.repo.ConsumeCode(ctx, address, pending.CodeHash)
	if err != nil {
		return s.finish("verify_code", address, start, failed(err))
	}
	if !consumed {
		return s.finish("verify_code", address, start, expired())
	}

	return s.finish("verify_code", address, start, s.markVerified(ctx, address, verification.SourceCode))
}

// RequestMagicLink issues a single-use link for address and mails it.
func (s *VerificationService) RequestMagicLink(ctx context.Context, address string) *VerificationResult {
	start := s.clock.Now()
	marker := s.perfTracker.StartOperation("request_magic_link", "")
	defer marker.Complete()

	address = verification.NormalizeEmail(address)
	if !verification.ValidEmail(address) {
		return s.finish("request_magic_link", address, start, &VerificationResult{Outcome: OutcomeInvalidEmail, Error: "Invalid email address"})
	}
	if s.repo == nil || s.mailer == nil || s.cfg.MagicLinkBaseURL == "" {
		return s.finish("request_magic_link", address, start, unavailable())
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	token, err := security.GenerateSecureToken(MagicTokenBytes)
	if err != nil {
		return s.finish("request_magic_link", address, start, failed(err))
	}
	link, err := buildMagicLinkURL(s.cfg.MagicLinkBaseURL, token)
	if err != nil {
		return s.finish("request_magic_link", address, start, failed(err))
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.cfg.MagicLinkTTL)
	if err := s.repo.EnsureEmail(ctx, address, now); err != nil {
		return s.finish("request_magic_link", address, start, failed(err))
	}
	if err := s.repo.SaveMagicLink(ctx, verification.MagicLink{Token: token, Email: address, ExpiresAt: expiresAt, CreatedAt: now}); err != nil {
		return s.finish("request_magic_link", address, start, failed(err))
	}
	if err := s.mailer.SendMagicLink(ctx, address, link, s.cfg.MagicLinkTTL); err != nil {
		return s.finish("request_magic_link", address, start, failed(err))
	}

	return s.finish("request_magic_link", address, start, &VerificationResult{Outcome: OutcomeSent, Success: true, Email: address, ExpiresAt: &expiresAt})
}

// VerifyMagicLink redeems a link. The token is removed from the store
// before the verification write, so a concurrent duplicate sees
// expired_token.
func (s *VerificationService) VerifyMagicLink(ctx context.Context, token string) *VerificationResult {
	start := s.clock.Now()
	marker := s.perfTracker.StartOperation("verify_magic_link", "")
	defer marker.Complete()

	token = strings.TrimSpace(token)
	if !security.IsSecureToken(token, MagicTokenBytes) {
		return s.finish("verify_magic_link", "", start, &VerificationResult{Outcome: OutcomeInvalidToken, Error: "Invalid link"})
	}
	if s.repo == nil {
		return s.finish("verify_magic_link", "", start, unavailable())
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	link, err := s.repo.TakeMagicLink(ctx, token)
	if err != nil {
		return s.finish("verify_magic_link", "", start, failed(err))
	}
	if link == nil || link.Expired(s.clock.Now()) {
		return s.finish("verify_magic_link", "", start, &VerificationResult{Outcome: OutcomeExpiredToken, Error: "Link expired"})
	}

	return s.finish("verify_magic_link", link.Email, start, s.markVerified(ctx, link.Email, verification.SourceMagicLink))
}

// PurgeExpired removes expired codes and links.
func (s *VerificationService) PurgeExpired(ctx context.Context) (int64, error) {
	if s.repo == nil {
		return 0, nil
	}
	return s.repo.PurgeExpired(ctx, s.clock.Now())
}

func (s *VerificationService) markVerified(ctx context.Context, address string, source verification.Source) *VerificationResult {
	rec, err := s.repo.MarkVerified(ctx, address, source, s.clock.Now())
	if err != nil {
		return failed(err)
	}
	return &VerificationResult{Outcome: OutcomeVerified, Success: true, Email: rec.Email, VerifiedAt: rec.VerifiedAt}
}

func (s *VerificationService) finish(op, address string, start time.Time, res *VerificationResult) *VerificationResult {
	s.logger.LogVerification(op, address, string(res.Outcome), s.clock.Now().Sub(start))
	if res.Outcome == OutcomeFailed {
		s.logger.Verification().Error("Verification operation failed", "operation", op, "error", res.Error)
		res.Error = "Verification temporarily failed, please retry"
	}
	return res
}

func unavailable() *VerificationResult {
	return &VerificationResult{Outcome: OutcomeUnavailable, Error: "Email verification is not available"}
}

func expired() *VerificationResult {
	return &VerificationResult{Outcome: OutcomeExpired, Error: "Code expired or not found"}
}

func failed(err error) *VerificationResult {
	return &VerificationResult{Outcome: OutcomeFailed, Retryable: true, Error: err.Error()}
}

func buildMagicLinkURL(base, token string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse magic link base url: %w", err)
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
