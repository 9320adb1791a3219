package clientstate

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clock"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/persistence/database"
)

// SQLBackend stores items in the client_state table so that state
// survives process restarts and is shared by every replica.
type SQLBackend struct {
	db      *database.DB
	clock   clock.Clock
	timeout time.Duration
	logger  *logging.ChanneledLogger
}

// NewSQLBackend creates a backend over db. timeout bounds each statement.
func NewSQLBackend(db *database.DB, clk clock.Clock, timeout time.Duration, logger *logging.ChanneledLogger) *SQLBackend {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &SQLBackend{db: db, clock: clk, timeout: timeout, logger: logger}
}

func (b *SQLBackend) GetItem(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	start := time.Now()
	query := b.db.Rebind(`SELECT state_value FROM client_state WHERE state_key = ?`)
	var value string
	err := b.db.QueryRowContext(ctx, query, key).Scan(&value)
	database.CheckAndLogSlowQuery(b.logger, "CLIENT_STATE_GET", time.Since(start))
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (b *SQLBackend) SetItem(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	start := time.Now()
	query := b.db.Rebind(`INSERT INTO client_state (state_key, state_value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (state_key) DO UPDATE SET state_value = excluded.state_value, updated_at = excluded.updated_at`)
	_, err := b.db.ExecContext(ctx, query, key, value, b.clock.Now().UnixMilli())
	database.CheckAndLogSlowQuery(b.logger, "CLIENT_STATE_SET", time.Since(start))
	return err
}

func (b *SQLBackend) RemoveItem(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	_, err := b.db.ExecContext(ctx, b.db.Rebind(`DELETE FROM client_state WHERE state_key = ?`), key)
	return err
}

// PurgeOlderThan deletes items not written since cutoff and returns how many
// rows went away.
func (b *SQLBackend) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := b.db.ExecContext(ctx, b.db.Rebind(`DELETE FROM client_state WHERE updated_at < ?`), cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
