// Package migrations applies the schema on startup. Statements are idempotent
// so repeated runs against the same database are safe.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT,
		wallet_address TEXT,
		role TEXT NOT NULL,
		kyc_status TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_idx ON users (lower(email)) WHERE email IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_wallet_idx ON users (wallet_address) WHERE wallet_address IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS investor_profiles (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users (id),
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		country TEXT NOT NULL,
		investor_type TEXT NOT NULL,
		risk_tolerance TEXT,
		accreditation_status TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS investor_profiles_user_idx ON investor_profiles (user_id)`,

	`CREATE TABLE IF NOT EXISTS banks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL,
		admin_user_id TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS banks_code_idx ON banks (code)`,

	`CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		bank_id TEXT NOT NULL REFERENCES banks (id),
		name TEXT NOT NULL,
		description TEXT,
		asset_type TEXT NOT NULL,
		total_value NUMERIC(28, 8) NOT NULL,
		total_supply BIGINT NOT NULL,
		price_per_token NUMERIC(28, 8) NOT NULL,
		mint_address TEXT,
		metadata_uri TEXT,
		tokenization_offering_id TEXT,
		tokenization_status TEXT NOT NULL,
		listing_status TEXT NOT NULL,
		tokenized_at TIMESTAMPTZ,
		listed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS assets_bank_idx ON assets (bank_id)`,
	`CREATE INDEX IF NOT EXISTS assets_listing_idx ON assets (listing_status)`,

	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL REFERENCES assets (id) ON DELETE CASCADE,
		doc_type TEXT NOT NULL,
		name TEXT NOT NULL,
		storage_key TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		uploaded_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS documents_asset_idx ON documents (asset_id)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL REFERENCES assets (id),
		buyer_id TEXT NOT NULL,
		seller_id TEXT,
		tx_type TEXT NOT NULL,
		amount NUMERIC(28, 8) NOT NULL,
		token_amount BIGINT NOT NULL,
		escrow_address TEXT,
		tx_signature TEXT,
		status TEXT NOT NULL,
		failure_reason TEXT,
		completed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_asset_idx ON transactions (asset_id)`,
	`CREATE INDEX IF NOT EXISTS transactions_buyer_idx ON transactions (buyer_id)`,
	`CREATE INDEX IF NOT EXISTS transactions_status_idx ON transactions (status, updated_at)`,

	`CREATE TABLE IF NOT EXISTS portfolio_holdings (
		id TEXT PRIMARY KEY,
		investor_profile_id TEXT NOT NULL REFERENCES investor_profiles (id),
		asset_id TEXT NOT NULL REFERENCES assets (id),
		token_amount BIGINT NOT NULL,
		cost_basis NUMERIC(28, 8) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS portfolio_holdings_profile_asset_idx
		ON portfolio_holdings (investor_profile_id, asset_id)`,

	`CREATE TABLE IF NOT EXISTS auctions (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL REFERENCES assets (id),
		reserve_price NUMERIC(28, 8) NOT NULL,
		current_bid NUMERIC(28, 8),
		current_bidder TEXT,
		token_amount BIGINT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		settled_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS auctions_asset_idx ON auctions (asset_id)`,
	`CREATE INDEX IF NOT EXISTS auctions_status_time_idx ON auctions (status, start_time, end_time)`,

	`CREATE TABLE IF NOT EXISTS bids (
		id TEXT PRIMARY KEY,
		auction_id TEXT NOT NULL REFERENCES auctions (id),
		bidder TEXT NOT NULL,
		amount NUMERIC(28, 8) NOT NULL,
		signature TEXT,
		is_winning BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS bids_auction_idx ON bids (auction_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS bids_winning_idx ON bids (auction_id) WHERE is_winning`,
}

// Apply executes every migration statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
