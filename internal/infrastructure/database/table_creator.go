// Package database owns the relational schema used by the verification
// records and the server-hosted client state.
package database

import (
	"context"
	"database/sql"
	"fmt"
)

// TableCreator handles the creation of the database schema.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all necessary queries to build the tables and
// indexes. Every statement is idempotent.
func (tc *TableCreator) CreateSchema(ctx context.Context, db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.ExecContext(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

// Timestamps are unix milliseconds so the same DDL runs on sqlite, libsql
// and postgres.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS verification_emails (
		email TEXT PRIMARY KEY,
		verified INTEGER NOT NULL DEFAULT 0,
		verified_at BIGINT,
		source TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS verification_codes (
		email TEXT PRIMARY KEY,
		code_hash TEXT NOT NULL,
		expires_at BIGINT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS magic_links (
		token TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		expires_at BIGINT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS client_state (
		state_key TEXT PRIMARY KEY,
		state_value TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_verification_codes_expires ON verification_codes(expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_magic_links_email ON magic_links(email)`,
	`CREATE INDEX IF NOT EXISTS idx_magic_links_expires ON magic_links(expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_client_state_updated ON client_state(updated_at)`,
}
