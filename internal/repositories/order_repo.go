package repositories

import (
	"context"
	"fmt"
	"log"
	"time"

	"hawkinsfarm/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type OrderRepository interface {
	// Save persists the order and its lines atomically, assigning an id when
	// the order has none and filling in the timestamps.
	Save(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.Order, error)
	FindByFarmerInItems(ctx context.Context, farmerID uuid.UUID) ([]*models.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// UpdateStatus moves the order from one status to another. It returns
	// models.ErrConflict if the stored status is no longer from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (*models.Order, error)
}

const commitCheckTimeout = 2 * time.Second

type orderRepo struct {
	db DBTX
}

func NewOrderRepo(db DBTX) OrderRepository {
	return &orderRepo{db: db}
}

const orderColumns = `o.id, o.buyer_id, o.status, o.total_amount, o.shipping_address, o.payment_method, o.created_at, o.updated_at`

func (r *orderRepo) Save(ctx context.Context, order *models.Order) (*models.Order, error) {
	if len(order.Items) == 0 {
		return nil, models.NewValidationError("items", "at least one item is required")
	}
	saved := *order
	if saved.ID == uuid.Nil {
		saved.ID = uuid.New()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, models.StorageError("begin order tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	orderQuery := `
		INSERT INTO orders (id, buyer_id, status, total_amount, shipping_address, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, orderQuery, saved.ID, saved.BuyerID, string(saved.Status), saved.TotalAmount, saved.ShippingAddress, saved.PaymentMethod).
		Scan(&saved.CreatedAt, &saved.UpdatedAt)
	if err != nil {
		return nil, models.StorageError("insert order", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, line_no, product_id, name, quantity, price, farmer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i, item := range saved.Items {
		if _, err := tx.Exec(ctx, itemQuery, saved.ID, i, item.ProductID, item.Name, item.Quantity, item.Price, item.FarmerID); err != nil {
			return nil, models.StorageError(fmt.Sprintf("insert order item %d", i), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if !r.committed(ctx, saved.ID) {
			log.Printf("ERROR: commit of order %s for buyer %s failed, outcome unknown until reconciled: %v", saved.ID, saved.BuyerID, err)
			return nil, models.StorageError("commit order", err)
		}
		log.Printf("WARN: commit of order %s reported %v but the order is stored", saved.ID, err)
	}
	saved.Items = append([]models.OrderItem(nil), order.Items...)
	return &saved, nil
}

// committed re-reads an order after an ambiguous commit error.
func (r *orderRepo) committed(ctx context.Context, id uuid.UUID) bool {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitCheckTimeout)
	defer cancel()

	var exists bool
	if err := r.db.QueryRow(cctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		log.Printf("WARN: could not check order %s after failed commit: %v", id, err)
		return false
	}
	return exists
}

func (r *orderRepo) FindByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.buyer_id = $1 ORDER BY o.created_at DESC, o.id DESC`
	return r.findOrders(ctx, "find buyer orders", query, buyerID)
}

// FindByFarmerInItems returns every order containing at least one line owned
// by farmerID. Each order appears once regardless of how many lines match.
func (r *orderRepo) FindByFarmerInItems(ctx context.Context, farmerID uuid.UUID) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE EXISTS (SELECT 1 FROM order_items i WHERE i.order_id = o.id AND i.farmer_id = $1) ORDER BY o.created_at DESC, o.id DESC`
	return r.findOrders(ctx, "find farmer orders", query, farmerID)
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`
	order, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr("get order", err, models.ErrOrderNotFound)
	}
	if err := r.attachItems(ctx, []*models.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (*models.Order, error) {
	query := `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3 RETURNING updated_at`
	var updatedAt time.Time
	if err := r.db.QueryRow(ctx, query, string(to), id, string(from)).Scan(&updatedAt); err != nil {
		return nil, notFoundOr("update order status", err, models.ErrConflict)
	}
	return r.GetByID(ctx, id)
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	o := &models.Order{}
	var status string
	err := row.Scan(&o.ID, &o.BuyerID, &status, &o.TotalAmount, &o.ShippingAddress, &o.PaymentMethod, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)
	return o, nil
}

func (r *orderRepo) findOrders(ctx context.Context, op, query string, args ...any) ([]*models.Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, models.StorageError(op, err)
	}
	orders := make([]*models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, models.StorageError(op, err)
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, models.StorageError(op, err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the lines of all orders in one query, in line order.
func (r *orderRepo) attachItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.Order, len(orders))
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	query := `SELECT order_id, product_id, name, quantity, price, farmer_id FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return models.StorageError("load order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var item models.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Quantity, &item.Price, &item.FarmerID); err != nil {
			return models.StorageError("load order items", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return models.StorageError("load order items", err)
	}
	return nil
}
