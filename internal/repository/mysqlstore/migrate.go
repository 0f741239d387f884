package mysqlstore

import (
	"context"
	"fmt"
)

// Bids carry no foreign key so the ledger survives auction deletion; seq
// records commit order.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            VARCHAR(64) PRIMARY KEY,
		name          VARCHAR(255) NOT NULL,
		email         VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role          ENUM('bidder', 'seller', 'admin') NOT NULL,
		created_at    DATETIME(6) NOT NULL,
		updated_at    DATETIME(6) NOT NULL,
		INDEX users_created_at_idx (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS auctions (
		id                VARCHAR(64) PRIMARY KEY,
		title             VARCHAR(255) NOT NULL,
		description       TEXT NOT NULL,
		starting_price    DECIMAL(14, 2) NOT NULL,
		current_price     DECIMAL(14, 2) NOT NULL,
		start_time        DATETIME(6) NOT NULL,
		end_time          DATETIME(6) NOT NULL,
		seller_id         VARCHAR(64) NOT NULL,
		highest_bidder_id VARCHAR(64) NULL,
		images            JSON NOT NULL,
		status            ENUM('upcoming', 'active', 'ended') NOT NULL,
		created_at        DATETIME(6) NOT NULL,
		updated_at        DATETIME(6) NOT NULL,
		INDEX auctions_status_end_time_idx (status, end_time),
		INDEX auctions_start_time_idx (start_time, id),
		CONSTRAINT auctions_window_chk CHECK (end_time > start_time)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bids (
		seq        BIGINT AUTO_INCREMENT PRIMARY KEY,
		id         VARCHAR(64) NOT NULL UNIQUE,
		auction_id VARCHAR(64) NOT NULL,
		bidder_id  VARCHAR(64) NOT NULL,
		amount     DECIMAL(14, 2) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX bids_auction_seq_idx (auction_id, seq),
		INDEX bids_bidder_idx (bidder_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates tables that do not exist yet. MySQL commits DDL
// implicitly, so statements run one by one.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mysqlstore: migration statement %d failed: %w", i+1, err)
		}
	}
	return nil
}
