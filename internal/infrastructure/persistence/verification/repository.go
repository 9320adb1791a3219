// Package verification provides the SQL-based implementation of the
// verification system of record.
package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/domain/verification"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/persistence/database"
)

// SQLRepository is the SQL-based implementation of verification.Repository.
type SQLRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLRepository creates a new instance of the repository.
func NewSQLRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLRepository {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &SQLRepository{db: db, logger: logger}
}

var _ verification.Repository = (*SQLRepository)(nil)

// FindEmail retrieves the record for an address.
func (r *SQLRepository) FindEmail(ctx context.Context, email string) (*verification.EmailRecord, error) {
	const query = `
		SELECT email, verified, verified_at, source, created_at, updated_at
		FROM verification_emails
		WHERE email = ?`

	start := time.Now()
	var (
		rec        verification.EmailRecord
		verified   int
		verifiedAt sql.NullInt64
		source     string
		createdAt  int64
		updatedAt  int64
	)
	err := r.db.QueryRowContext(ctx, r.db.Rebind(query), email).
		Scan(&rec.Email, &verified, &verifiedAt, &source, &createdAt, &updatedAt)
	database.CheckAndLogSlowQuery(r.logger, "VERIFICATION_FIND_EMAIL", time.Since(start))
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Database().Debug("Email record not found", "email", logging.MaskEmail(email))
		return nil, nil
	}
	if err != nil {
		r.logger.Database().Error("Failed to load email record", "error", err.Error())
		return nil, fmt.Errorf("find email: %w", err)
	}

	rec.Verified = verified != 0
	rec.Source = verification.Source(source)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	if verifiedAt.Valid {
		at := fromMillis(verifiedAt.Int64)
		rec.VerifiedAt = &at
	}
	return &rec, nil
}

// EnsureEmail creates an unverified record if none exists.
func (r *SQLRepository) EnsureEmail(ctx context.Context, email string, at time.Time) error {
	const query = `
		INSERT INTO verification_emails (email, verified, source, created_at, updated_at)
		VALUES (?, 0, '', ?, ?)
		ON CONFLICT (email) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), email, at.UnixMilli(), at.UnixMilli()); err != nil {
		r.logger.Database().Error("Failed to ensure email record", "error", err.Error())
		return fmt.Errorf("ensure email: %w", err)
	}
	return nil
}

// MarkVerified upserts the record as verified. The first verification time
// is kept on repeat verifications.
func (r *SQLRepository) MarkVerified(ctx context.Context, email string, source verification.Source, at time.Time) (*verification.EmailRecord, error) {
	const query = `
		INSERT INTO verification_emails (email, verified, verified_at, source, created_at, updated_at)
		VALUES (?, 1, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			verified = 1,
			verified_at = COALESCE(verification_emails.verified_at, excluded.verified_at),
			source = excluded.source,
			updated_at = excluded.updated_at`

	ms := at.UnixMilli()
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), email, ms, string(source), ms, ms); err != nil {
		r.logger.Database().Error("Failed to mark email verified", "error", err.Error())
		return nil, fmt.Errorf("mark verified: %w", err)
	}
	r.logger.Database().Info("Email marked verified", "email", logging.MaskEmail(email), "source", source)
	return r.FindEmail(ctx, email)
}

// SaveCode replaces the outstanding code for an address.
func (r *SQLRepository) SaveCode(ctx context.Context, code verification.PendingCode) error {
	const query = `
		INSERT INTO verification_codes (email, code_hash, expires_at, attempts, created_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (email) DO UPDATE SET
			code_hash = excluded.code_hash,
			expires_at = excluded.expires_at,
			attempts = 0,
			created_at = excluded.created_at`

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		code.Email, code.CodeHash, code.ExpiresAt.UnixMilli(), code.CreatedAt.UnixMilli())
	if err != nil {
		r.logger.Database().Error("Failed to save verification code", "error", err.Error())
		return fmt.Errorf("save code: %w", err)
	}
	return nil
}

// FindCode retrieves the outstanding code for an address.
func (r *SQLRepository) FindCode(ctx context.Context, email string) (*verification.PendingCode, error) {
	const query = `SELECT email, code_hash, expires_at, attempts, created_at FROM verification_codes WHERE email = ?`

	var (
		code      verification.PendingCode
		expiresAt int64
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, r.db.Rebind(query), email).Scan(&code.Email, &code.CodeHash, &expiresAt, &code.Attempts, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Database().Error("Failed to load verification code", "error", err.Error())
		return nil, fmt.Errorf("find code: %w", err)
	}
	code.ExpiresAt = fromMillis(expiresAt)
	code.CreatedAt = fromMillis(createdAt)
	return &code, nil
}

// ConsumeCode deletes the code if it still carries codeHash.
func (r *SQLRepository) ConsumeCode(ctx context.Context, email, codeHash string) (bool, error) {
	const query = `DELETE FROM verification_codes WHERE email = ? AND code_hash = ?`

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), email, codeHash)
	if err != nil {
		r.logger.Database().Error("Failed to consume verification code", "error", err.Error())
		return false, fmt.Errorf("consume code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume code: %w", err)
	}
	return n == 1, nil
}

// RecordCodeMiss increments the miss counter and deletes the code once it
// reaches limit.
func (r *SQLRepository) RecordCodeMiss(ctx context.Context, email, codeHash string, limit int) (bool, error) {
	const bump = `UPDATE verification_codes SET attempts = attempts + 1 WHERE email = ? AND code_hash = ?`
	const burn = `DELETE FROM verification_codes WHERE email = ? AND code_hash = ? AND attempts >= ?`

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(bump), email, codeHash); err != nil {
		r.logger.Database().Error("Failed to record code miss", "error", err.Error())
		return false, fmt.Errorf("record code miss: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(burn), email, codeHash, limit)
	if err != nil {
		r.logger.Database().Error("Failed to retire exhausted code", "error", err.Error())
		return false, fmt.Errorf("record code miss: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record code miss: %w", err)
	}
	return n == 1, nil
}

// SaveMagicLink stores a new link.
func (r *SQLRepository) SaveMagicLink(ctx context.Context, link verification.MagicLink) error {
	const query = `INSERT INTO magic_links (token, email, expires_at, created_at) VALUES (?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		link.Token, link.Email, link.ExpiresAt.UnixMilli(), link.CreatedAt.UnixMilli())
	if err != nil {
		r.logger.Database().Error("Failed to save magic link", "error", err.Error())
		return fmt.Errorf("save magic link: %w", err)
	}
	return nil
}

// TakeMagicLink deletes the link and returns what was deleted.
func (r *SQLRepository) TakeMagicLink(ctx context.Context, token string) (*verification.MagicLink, error) {
	const query = `DELETE FROM magic_links WHERE token = ? RETURNING token, email, expires_at, created_at`

	var (
		link      verification.MagicLink
		expiresAt int64
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, r.db.Rebind(query), token).Scan(&link.Token, &link.Email, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Database().Error("Failed to take magic link", "error", err.Error())
		return nil, fmt.Errorf("take magic link: %w", err)
	}
	link.ExpiresAt = fromMillis(expiresAt)
	link.CreatedAt = fromMillis(createdAt)
	return &link, nil
}

// PurgeExpired removes expired codes and links.
func (r *SQLRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	start := time.Now()
	var total int64
	for _, query := range []string{
		`DELETE FROM verification_codes WHERE expires_at <= ?`,
		`DELETE FROM magic_links WHERE expires_at <= ?`,
	} {
		res, err := r.db.ExecContext(ctx, r.db.Rebind(query), now.UnixMilli())
		if err != nil {
			return total, fmt.Errorf("purge expired: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	database.CheckAndLogSlowQuery(r.logger, "VERIFICATION_PURGE", time.Since(start))
	return total, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
