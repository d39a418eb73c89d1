package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"hawkinsfarm/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memCatalog is an in-memory StockStore whose decrement is atomic and
// conditional, like the SQL statement it stands in for.
type memCatalog struct {
	mu       sync.Mutex
	products map[uuid.UUID]*models.Product

	decrementErr   map[uuid.UUID]error
	incrementErr   error
	blockDecrement bool
	increments     int
}

func newMemCatalog(products ...*models.Product) *memCatalog {
	c := &memCatalog{
		products:     make(map[uuid.UUID]*models.Product),
		decrementErr: make(map[uuid.UUID]error),
	}
	for _, p := range products {
		cp := *p
		c.products[p.ID] = &cp
	}
	return c
}

func (c *memCatalog) GetByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, models.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (c *memCatalog) DecrementStock(ctx context.Context, id uuid.UUID, amount int) error {
	if c.blockDecrement {
		<-ctx.Done()
		return models.StorageError("decrement stock", ctx.Err())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.decrementErr[id]; err != nil {
		return err
	}
	p, ok := c.products[id]
	if !ok || p.Quantity < amount {
		return models.ErrConflict
	}
	p.Quantity -= amount
	return nil
}

func (c *memCatalog) IncrementStock(_ context.Context, id uuid.UUID, amount int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.increments++
	if c.incrementErr != nil {
		return c.incrementErr
	}
	p, ok := c.products[id]
	if !ok {
		return models.ErrProductNotFound
	}
	p.Quantity += amount
	return nil
}

// relist changes a listing's name and price in place, as a farmer edit would.
func (c *memCatalog) relist(id uuid.UUID, name string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[id].Name = name
	c.products[id].Price = price
}

func (c *memCatalog) stock(id uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.products[id].Quantity
}

// memOrders is an in-memory OrderRepository.
type memOrders struct {
	mu      sync.Mutex
	orders  []*models.Order
	saveErr error
	clock   time.Time
}

func newMemOrders() *memOrders {
	return &memOrders{clock: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp
}

func (r *memOrders) Save(_ context.Context, order *models.Order) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	saved := cloneOrder(order)
	if saved.ID == uuid.Nil {
		saved.ID = uuid.New()
	}
	r.clock = r.clock.Add(time.Minute)
	saved.CreatedAt, saved.UpdatedAt = r.clock, r.clock
	r.orders = append(r.orders, saved)
	return cloneOrder(saved), nil
}

func (r *memOrders) find(match func(*models.Order) bool) []*models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Order, 0)
	for _, o := range r.orders {
		if match(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *memOrders) FindByBuyer(_ context.Context, buyerID uuid.UUID) ([]*models.Order, error) {
	return r.find(func(o *models.Order) bool { return o.BuyerID == buyerID }), nil
}

func (r *memOrders) FindByFarmerInItems(_ context.Context, farmerID uuid.UUID) ([]*models.Order, error) {
	return r.find(func(o *models.Order) bool { return o.HasFarmer(farmerID) }), nil
}

func (r *memOrders) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	found := r.find(func(o *models.Order) bool { return o.ID == id })
	if len(found) == 0 {
		return nil, models.ErrOrderNotFound
	}
	return found[0], nil
}

func (r *memOrders) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (*models.Order, error) {
	r.mu.Lock()
	for _, o := range r.orders {
		if o.ID == id {
			if o.Status != from {
				r.mu.Unlock()
				return nil, models.ErrConflict
			}
			o.Status = to
		}
	}
	r.mu.Unlock()
	return r.GetByID(ctx, id)
}

func (r *memOrders) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type recordingNotifier struct {
	mu     sync.Mutex
	orders []uuid.UUID
	err    error
}

func (n *recordingNotifier) NotifyOrderPlaced(_ context.Context, order *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, order.ID)
	return n.err
}

type memIdempotency struct {
	mu          sync.Mutex
	entries     map[string]uuid.UUID
	released    []string
	reserveTTL  time.Duration
	completeTTL time.Duration
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{entries: make(map[string]uuid.UUID)}
}

func (m *memIdempotency) Reserve(_ context.Context, key string, ttl time.Duration) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserveTTL = ttl
	if id, ok := m.entries[key]; ok {
		return id, false, nil
	}
	m.entries[key] = uuid.Nil
	return uuid.Nil, true, nil
}

func (m *memIdempotency) Complete(_ context.Context, key string, orderID uuid.UUID, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeTTL = ttl
	m.entries[key] = orderID
	return nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	m.released = append(m.released, key)
	return nil
}
