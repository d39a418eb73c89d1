package database

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of a pool or transaction needed to apply the schema.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// schema is idempotent; every statement can be re-run on startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL,
		phone_number TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL CHECK (role IN ('Buyer', 'Farmer')),
		address TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id UUID PRIMARY KEY,
		farmer_id UUID NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		description TEXT,
		category TEXT NOT NULL,
		image_url TEXT,
		price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		quantity INT NOT NULL CHECK (quantity >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_farmer_id ON products (farmer_id)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		buyer_id UUID NOT NULL REFERENCES users(id),
		status TEXT NOT NULL,
		total_amount NUMERIC(14,2) NOT NULL CHECK (total_amount >= 0),
		shipping_address TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_buyer_created ON orders (buyer_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id UUID NOT NULL REFERENCES orders(id),
		line_no INT NOT NULL,
		product_id UUID NOT NULL,
		name TEXT NOT NULL,
		quantity INT NOT NULL CHECK (quantity > 0),
		price NUMERIC(12,2) NOT NULL,
		farmer_id UUID NOT NULL,
		PRIMARY KEY (order_id, line_no)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_farmer_id ON order_items (farmer_id)`,
}

// Migrate applies the schema. order_items.product_id deliberately has no
// foreign key so that products can be deleted without touching history.
func Migrate(ctx context.Context, db Execer) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	log.Printf("Database schema up to date (%d statements)", len(schema))
	return nil
}
