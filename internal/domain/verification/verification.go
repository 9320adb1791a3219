// Package verification defines the system of record for email
// verification: verified addresses, pending codes and magic links.
// Client-side flags are only a cache of what this package stores.
package verification

import (
	"context"
	"net/mail"
	"strings"
	"time"
)

// Source records how an address was verified.
type Source string

const (
	SourceCode      Source = "code"
	SourceMagicLink Source = "magic_link"
)

// EmailRecord is the authoritative state of one address.
type EmailRecord struct {
	Email      string     `json:"email"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	Source     Source     `json:"source,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// PendingCode is an outstanding emailed code. Only its hash is stored.
type PendingCode struct {
	Email     string
	CodeHash  string
	ExpiresAt time.Time
	// Attempts counts failed redemptions against this code.
	Attempts  int
	CreatedAt time.Time
}

// Expired reports whether the code can no longer be redeemed at now.
func (c PendingCode) Expired(now time.Time) bool { return !now.Before(c.ExpiresAt) }

// MagicLink is an outstanding single-use sign-in token.
type MagicLink struct {
	Token     string
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the link can no longer be redeemed at now.
func (l MagicLink) Expired(now time.Time) bool { return !now.Before(l.ExpiresAt) }

// Repository persists verification state. Finders return (nil, nil) when
// nothing matches.
type Repository interface {
	FindEmail(ctx context.Context, email string) (*EmailRecord, error)
	// EnsureEmail creates an unverified record if none exists.
	EnsureEmail(ctx context.Context, email string, at time.Time) error
	MarkVerified(ctx context.Context, email string, source Source, at time.Time) (*EmailRecord, error)

	// SaveCode replaces any outstanding code for the address.
	SaveCode(ctx context.Context, code PendingCode) error
	FindCode(ctx context.Context, email string) (*PendingCode, error)
	// ConsumeCode deletes the code only if it still carries codeHash. It
	// reports false when another caller consumed or replaced it first.
	ConsumeCode(ctx context.Context, email, codeHash string) (bool, error)
	// RecordCodeMiss counts a failed redemption of the code carrying
	// codeHash. Once the count reaches limit the code is deleted and true
	// is returned.
	RecordCodeMiss(ctx context.Context, email, codeHash string, limit int) (bool, error)

	SaveMagicLink(ctx context.Context, link MagicLink) error
	// TakeMagicLink deletes and returns the link in one step. Concurrent
	// callers for the same token see at most one non-nil result.
	TakeMagicLink(ctx context.Context, token string) (*MagicLink, error)

	// PurgeExpired removes codes and links that expired before now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email is a bare addr-spec.
func ValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email[strings.LastIndex(email, "@")+1:], ".")
}
