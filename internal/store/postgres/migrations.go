package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one versioned schema step. Statements run inside a single
// transaction together with the schema_migrations marker insert, so a step is
// either fully applied and recorded or not applied at all.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "catalog and locations",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS items (
				id TEXT PRIMARY KEY,
				sku TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				buy_price_cents BIGINT NOT NULL DEFAULT 0,
				sell_price_cents BIGINT NOT NULL,
				quantity INTEGER NOT NULL DEFAULT 0,
				min_stock INTEGER NOT NULL DEFAULT 0,
				max_stock INTEGER NOT NULL DEFAULT 0,
				allow_negative_stock BOOLEAN NOT NULL DEFAULT FALSE,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE TABLE IF NOT EXISTS locations (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				address TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
		},
	},
	{
		version: 2,
		name:    "location inventory ledger",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS location_inventory (
				location_id TEXT NOT NULL REFERENCES locations(id),
				item_id TEXT NOT NULL REFERENCES items(id),
				quantity INTEGER NOT NULL DEFAULT 0,
				min_stock INTEGER NOT NULL DEFAULT 0,
				max_stock INTEGER NOT NULL DEFAULT 0,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY (location_id, item_id)
			)`,
			`CREATE TABLE IF NOT EXISTS inventory_transfers (
				id TEXT PRIMARY KEY,
				item_id TEXT NOT NULL REFERENCES items(id),
				from_location TEXT NOT NULL REFERENCES locations(id),
				to_location TEXT NOT NULL REFERENCES locations(id),
				quantity INTEGER NOT NULL,
				transferred_by TEXT NOT NULL DEFAULT '',
				notes TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_inventory_transfers_item ON inventory_transfers (item_id, created_at DESC)`,
		},
	},
	{
		version: 3,
		name:    "customers and sales",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS customers (
				id TEXT PRIMARY KEY,
				phone TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL DEFAULT '',
				loyalty_points BIGINT NOT NULL DEFAULT 0,
				total_spent_cents BIGINT NOT NULL DEFAULT 0,
				discount_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE TABLE IF NOT EXISTS sales (
				id TEXT PRIMARY KEY,
				invoice TEXT NOT NULL UNIQUE,
				location_id TEXT NOT NULL REFERENCES locations(id),
				customer_id TEXT REFERENCES customers(id),
				cashier_username TEXT NOT NULL DEFAULT '',
				payment_method TEXT NOT NULL DEFAULT 'cash',
				subtotal_cents BIGINT NOT NULL,
				tax_rate_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
				tax_cents BIGINT NOT NULL DEFAULT 0,
				discount_cents BIGINT NOT NULL DEFAULT 0,
				total_cents BIGINT NOT NULL,
				paid_cents BIGINT NOT NULL DEFAULT 0,
				status TEXT NOT NULL,
				void_reason TEXT,
				voided_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE TABLE IF NOT EXISTS sales_items (
				id BIGSERIAL PRIMARY KEY,
				sale_id TEXT NOT NULL REFERENCES sales(id),
				item_id TEXT NOT NULL REFERENCES items(id),
				quantity INTEGER NOT NULL,
				unit_price_cents BIGINT NOT NULL,
				line_total_cents BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sales_items_sale ON sales_items (sale_id)`,
			`CREATE TABLE IF NOT EXISTS payments (
				id TEXT PRIMARY KEY,
				sale_id TEXT NOT NULL REFERENCES sales(id),
				amount_cents BIGINT NOT NULL,
				payment_method TEXT NOT NULL DEFAULT 'cash',
				reference TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'completed',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_payments_sale ON payments (sale_id, created_at ASC)`,
		},
	},
	{
		version: 4,
		name:    "audit logs and users",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS audit_logs (
				id TEXT PRIMARY KEY,
				location_id TEXT NOT NULL DEFAULT '',
				actor_username TEXT NOT NULL DEFAULT '',
				actor_role TEXT NOT NULL DEFAULT '',
				action TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL DEFAULT '',
				detail TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs (created_at DESC)`,
			`CREATE TABLE IF NOT EXISTS app_users (
				username TEXT PRIMARY KEY,
				password TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'cashier',
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
		},
	},
	{
		version: 5,
		name:    "sales location index",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_sales_location_created ON sales (location_id, created_at DESC)`,
		},
	},
}

// applyMigrations brings the schema up to the latest version. Applied versions
// are tracked in schema_migrations; already-applied steps are skipped.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			_ = rows.Close()
			return err
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, name) VALUES ($1, $2)
	`, m.version, m.name); err != nil {
		return err
	}
	return tx.Commit()
}
