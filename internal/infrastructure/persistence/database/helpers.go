// Package database provides database helper functions
package database

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
)

var slowQueryThreshold atomic.Int64

func init() {
	slowQueryThreshold.Store(int64(100 * time.Millisecond))
}

// SetSlowQueryThreshold changes the duration above which queries are
// reported on the slow-query channel.
func SetSlowQueryThreshold(d time.Duration) {
	if d > 0 {
		slowQueryThreshold.Store(int64(d))
	}
}

// GetSlowQueryThreshold returns the configured slow query threshold
func GetSlowQueryThreshold() time.Duration {
	return time.Duration(slowQueryThreshold.Load())
}

// CheckAndLogSlowQuery checks if a query duration exceeds threshold
// and logs it using the slow query channel if it does
func CheckAndLogSlowQuery(logger *logging.ChanneledLogger, query string, duration time.Duration) {
	threshold := GetSlowQueryThreshold()

	// Connection setup and schema creation are allowed more headroom.
	if strings.HasPrefix(query, "DATABASE_") || strings.HasPrefix(query, "SCHEMA_") {
		threshold *= 3
	}

	if duration > threshold {
		logger.LogSlowQuery(query, duration)
	}
}

// VerifyConnectionWithLogger runs a trivial query to confirm the database
// answers. Used by the health endpoint.
func VerifyConnectionWithLogger(ctx context.Context, db *DB, logger *logging.ChanneledLogger) error {
	start := time.Now()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		logger.Database().Error("Connection test query failed", "error", err.Error(), "driverName", db.Driver)
		return fmt.Errorf("connection test query failed: %w", err)
	}

	if result != 1 {
		logger.Database().Error("Unexpected connection test result", "result", result, "expected", 1)
		return fmt.Errorf("unexpected query result: %d", result)
	}

	logger.Database().Debug("Connection test successful", "driverName", db.Driver, "duration", time.Since(start))
	return nil
}
