package testhelpers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"hawkinsfarm/internal/models"
	"hawkinsfarm/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TestDB holds the database connection for testing
type TestDB struct {
	Pool    *pgxpool.Pool
	Cleanup func() error
}

// SetupTestDB connects to TEST_DATABASE_URL and applies the schema. The test
// is skipped when the variable is unset or -short is given.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPool(ctx, connString, database.PoolOptions{MaxConns: 20})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return &TestDB{
		Pool: pool,
		Cleanup: func() error {
			pool.Close()
			return nil
		},
	}
}

// SetupTestUser inserts a user with the given role and returns its id
func SetupTestUser(t *testing.T, db *TestDB, role models.Role) uuid.UUID {
	t.Helper()

	id := uuid.New()
	suffix := id.String()[:8]
	query := `
		INSERT INTO users (id, username, email, password_hash, full_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`
	_, err := db.Pool.Exec(context.Background(), query, id,
		fmt.Sprintf("user-%s", suffix), fmt.Sprintf("user-%s@example.com", suffix),
		"not-a-real-hash", "Test "+string(role), string(role))
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return id
}

// SetupTestProduct creates a product owned by farmerID
func SetupTestProduct(t *testing.T, db *TestDB, farmerID uuid.UUID, name string, price string, quantity int) *models.Product {
	t.Helper()

	product := &models.Product{
		ID:       uuid.New(),
		FarmerID: farmerID,
		Name:     name,
		Category: "Test",
		Price:    decimal.RequireFromString(price),
		Quantity: quantity,
	}

	query := `
		INSERT INTO products (id, farmer_id, name, category, price, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`
	_, err := db.Pool.Exec(context.Background(), query,
		product.ID, product.FarmerID, product.Name, product.Category, product.Price, product.Quantity)
	if err != nil {
		t.Fatalf("Failed to create test product: %v", err)
	}

	return product
}

// StockOf reads the current quantity of a product
func StockOf(t *testing.T, db *TestDB, productID uuid.UUID) int {
	t.Helper()

	var qty int
	if err := db.Pool.QueryRow(context.Background(), `SELECT quantity FROM products WHERE id = $1`, productID).Scan(&qty); err != nil {
		t.Fatalf("Failed to read stock: %v", err)
	}
	return qty
}
