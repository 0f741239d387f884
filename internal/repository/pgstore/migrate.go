package pgstore

import (
	"context"
	"fmt"
)

// schema is idempotent. Bids carry no foreign key so the ledger survives
// auction deletion; seq records commit order.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL CHECK (role IN ('bidder', 'seller', 'admin')),
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS auctions (
		id                TEXT PRIMARY KEY,
		title             TEXT NOT NULL,
		description       TEXT NOT NULL,
		starting_price    NUMERIC(14, 2) NOT NULL CHECK (starting_price >= 0),
		current_price     NUMERIC(14, 2) NOT NULL,
		start_time        TIMESTAMPTZ NOT NULL,
		end_time          TIMESTAMPTZ NOT NULL,
		seller_id         TEXT NOT NULL,
		highest_bidder_id TEXT,
		images            JSONB NOT NULL DEFAULT '[]'::jsonb,
		status            TEXT NOT NULL CHECK (status IN ('upcoming', 'active', 'ended')),
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL,
		CHECK (end_time > start_time),
		CHECK (current_price >= starting_price)
	)`,
	`CREATE INDEX IF NOT EXISTS auctions_status_end_time_idx ON auctions (status, end_time)`,
	`CREATE INDEX IF NOT EXISTS auctions_start_time_idx ON auctions (start_time, id)`,
	`CREATE TABLE IF NOT EXISTS bids (
		seq        BIGSERIAL PRIMARY KEY,
		id         TEXT NOT NULL UNIQUE,
		auction_id TEXT NOT NULL,
		bidder_id  TEXT NOT NULL,
		amount     NUMERIC(14, 2) NOT NULL CHECK (amount > 0),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS bids_auction_seq_idx ON bids (auction_id, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS bids_bidder_idx ON bids (bidder_id)`,
}

// Migrate creates tables and indexes that do not exist yet
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgstore: failed to begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgstore: migration statement %d failed: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgstore: failed to commit migration: %w", err)
	}
	return nil
}
