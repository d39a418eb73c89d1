package repositories

import (
	"context"

	"hawkinsfarm/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	// GetByIDs returns the products that exist among ids, in no particular order.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Product, error)
	// DecrementStock removes amount units only if at least amount remain.
	// It returns models.ErrConflict when the row no longer qualifies.
	DecrementStock(ctx context.Context, id uuid.UUID, amount int) error
	// IncrementStock is the compensating action for DecrementStock.
	IncrementStock(ctx context.Context, id uuid.UUID, amount int) error
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, farmerID, id uuid.UUID) error
	ListAvailable(ctx context.Context, limit, offset int) ([]*models.Product, error)
	ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]*models.Product, error)
	ListLowStock(ctx context.Context, threshold int) ([]*models.Product, error)
	SetImageURL(ctx context.Context, farmerID, id uuid.UUID, url string) error
}

type productRepo struct {
	db DBTX
}

func NewProductRepo(db DBTX) ProductRepository {
	return &productRepo{db: db}
}

const productColumns = `id, farmer_id, name, description, category, image_url, price, quantity, created_at, updated_at`

func scanProduct(row pgx.Row) (*models.Product, error) {
	p := &models.Product{}
	err := row.Scan(&p.ID, &p.FarmerID, &p.Name, &p.Description, &p.Category, &p.ImageURL, &p.Price, &p.Quantity, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *productRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr("get product", err, models.ErrProductNotFound)
	}
	return p, nil
}

func (r *productRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`
	return r.list(ctx, "get products", query, ids)
}

func (r *productRepo) DecrementStock(ctx context.Context, id uuid.UUID, amount int) error {
	query := `UPDATE products SET quantity = quantity - $2, updated_at = NOW() WHERE id = $1 AND quantity >= $2`
	tag, err := r.db.Exec(ctx, query, id, amount)
	if err != nil {
		return models.StorageError("decrement stock", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}
	return nil
}

func (r *productRepo) IncrementStock(ctx context.Context, id uuid.UUID, amount int) error {
	query := `UPDATE products SET quantity = quantity + $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, amount)
	if err != nil {
		return models.StorageError("increment stock", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrProductNotFound
	}
	return nil
}

func (r *productRepo) Create(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	query := `
		INSERT INTO products (id, farmer_id, name, description, category, image_url, price, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, product.ID, product.FarmerID, product.Name, product.Description, product.Category, product.ImageURL, product.Price, product.Quantity).
		Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return models.StorageError("create product", err)
	}
	return nil
}

// Update rewrites the editable fields of a product owned by product.FarmerID.
func (r *productRepo) Update(ctx context.Context, product *models.Product) error {
	query := `
		UPDATE products
		SET name = $1, description = $2, category = $3, price = $4, quantity = $5, updated_at = NOW()
		WHERE id = $6 AND farmer_id = $7
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, product.Name, product.Description, product.Category, product.Price, product.Quantity, product.ID, product.FarmerID).
		Scan(&product.UpdatedAt)
	if err != nil {
		return notFoundOr("update product", err, models.ErrProductNotFound)
	}
	return nil
}

func (r *productRepo) Delete(ctx context.Context, farmerID, id uuid.UUID) error {
	query := `DELETE FROM products WHERE id = $1 AND farmer_id = $2`
	tag, err := r.db.Exec(ctx, query, id, farmerID)
	if err != nil {
		return models.StorageError("delete product", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrProductNotFound
	}
	return nil
}

func (r *productRepo) ListAvailable(ctx context.Context, limit, offset int) ([]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE quantity > 0 ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`
	return r.list(ctx, "list available products", query, limit, offset)
}

func (r *productRepo) ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE farmer_id = $1 ORDER BY created_at DESC, id`
	return r.list(ctx, "list farmer products", query, farmerID)
}

func (r *productRepo) ListLowStock(ctx context.Context, threshold int) ([]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE quantity <= $1 ORDER BY farmer_id, quantity, name`
	return r.list(ctx, "list low stock products", query, threshold)
}

func (r *productRepo) SetImageURL(ctx context.Context, farmerID, id uuid.UUID, url string) error {
	query := `UPDATE products SET image_url = $1, updated_at = NOW() WHERE id = $2 AND farmer_id = $3`
	tag, err := r.db.Exec(ctx, query, url, id, farmerID)
	if err != nil {
		return models.StorageError("set product image", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrProductNotFound
	}
	return nil
}

func (r *productRepo) list(ctx context.Context, op, query string, args ...any) ([]*models.Product, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, models.StorageError(op, err)
	}
	defer rows.Close()

	products := make([]*models.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, models.StorageError(op, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, models.StorageError(op, err)
	}
	return products, nil
}
