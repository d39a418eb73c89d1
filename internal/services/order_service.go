package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"hawkinsfarm/internal/models"
	"hawkinsfarm/internal/repositories"
	"hawkinsfarm/pkg/metrics"

	"github.com/google/uuid"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, identity models.Identity, req models.PlaceOrderRequest) (*models.Order, error)
	ListBuyerHistory(ctx context.Context, identity models.Identity) ([]*models.Order, error)
	ListFarmerIncoming(ctx context.Context, identity models.Identity) ([]*models.FarmerOrder, error)
	GetOrder(ctx context.Context, identity models.Identity, orderID uuid.UUID) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, identity models.Identity, orderID uuid.UUID, status models.OrderStatus) (*models.Order, error)
}

// StockStore is the part of the catalog that order placement mutates.
type StockStore interface {
	ProductReader
	DecrementStock(ctx context.Context, id uuid.UUID, amount int) error
	IncrementStock(ctx context.Context, id uuid.UUID, amount int) error
}

// OrderNotifier tells farmers about new orders. Failures never fail a placement.
type OrderNotifier interface {
	NotifyOrderPlaced(ctx context.Context, order *models.Order) error
}

type IdempotencyStore interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (existing uuid.UUID, reserved bool, err error)
	Complete(ctx context.Context, key string, orderID uuid.UUID, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type OrderServiceConfig struct {
	PlacementTimeout    time.Duration
	CompensationTimeout time.Duration

	// IdempotencyTTL is how long a completed key keeps answering with its
	// order. An in-flight key only lives for PendingTTL.
	IdempotencyTTL time.Duration

	// Optional collaborators; nil disables them.
	Notifier    OrderNotifier
	Idempotency IdempotencyStore
	Metrics     *metrics.OrderMetrics
}

// pendingSlack pads the pending marker past the longest a placement can run.
const pendingSlack = 5 * time.Second

// PendingTTL bounds an in-flight idempotency key. It covers the placement
// deadline plus the compensation and settle windows, so a key held by a
// process that died mid-placement frees itself shortly after.
func (c OrderServiceConfig) PendingTTL() time.Duration {
	return c.PlacementTimeout + 2*c.CompensationTimeout + pendingSlack
}

type orderService struct {
	products StockStore
	orders   repositories.OrderRepository
	builder  *OrderBuilder
	cfg      OrderServiceConfig
}

func NewOrderService(products StockStore, orders repositories.OrderRepository, cfg OrderServiceConfig) OrderService {
	if cfg.PlacementTimeout <= 0 {
		cfg.PlacementTimeout = 5 * time.Second
	}
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = 5 * time.Second
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &orderService{
		products: products,
		orders:   orders,
		builder:  NewOrderBuilder(products),
		cfg:      cfg,
	}
}

func (s *orderService) PlaceOrder(ctx context.Context, identity models.Identity, req models.PlaceOrderRequest) (*models.Order, error) {
	started := time.Now()
	order, err := s.placeOrder(ctx, identity, req)
	s.cfg.Metrics.ObservePlacement(placementOutcome(err), started)
	if err != nil {
		log.Printf("WARN: order placement by %s failed: %v", identity.UserID, err)
		return nil, err
	}
	s.cfg.Metrics.AddOrderValue(order.TotalAmount.InexactFloat64())
	return order, nil
}

func (s *orderService) placeOrder(ctx context.Context, identity models.Identity, req models.PlaceOrderRequest) (order *models.Order, err error) {
	if err := Authorize(identity, OpPlaceOrder); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" && s.cfg.Idempotency != nil {
		key := identity.UserID.String() + ":" + req.IdempotencyKey
		existing, reserved, reserveErr := s.cfg.Idempotency.Reserve(ctx, key, s.cfg.PendingTTL())
		if reserveErr != nil {
			return nil, models.StorageError("reserve idempotency key", reserveErr)
		}
		if !reserved {
			if existing == uuid.Nil {
				return nil, fmt.Errorf("%w: an order with this idempotency key is still being placed", models.ErrConflict)
			}
			return s.orders.GetByID(ctx, existing)
		}
		defer func() {
			s.settleIdempotencyKey(ctx, key, order, err)
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.PlacementTimeout)
	defer cancel()

	draft, err := s.builder.Build(ctx, req.Items)
	if err != nil {
		return nil, abortedOr(ctx, err)
	}

	applied := make([]models.StockDecrement, 0, len(draft.Decrements))
	for _, d := range draft.Decrements {
		if err := s.products.DecrementStock(ctx, d.ProductID, d.Quantity); err != nil {
			err = abortedOr(ctx, fmt.Errorf("reserve %d units of product %s: %w", d.Quantity, d.ProductID, err))
			return nil, s.compensate(ctx, applied, err)
		}
		applied = append(applied, d)
	}

	saved, err := s.orders.Save(ctx, draft.NewOrder(identity.UserID, req.ShippingAddress, req.PaymentMethod))
	if err != nil {
		if !errors.Is(err, models.ErrStorage) {
			err = models.StorageError("save order", err)
		}
		return nil, s.compensate(ctx, applied, abortedOr(ctx, err))
	}

	log.Printf("INFO: order %s placed by %s: %d items, total %s", saved.ID, identity.UserID, len(saved.Items), saved.TotalAmount.StringFixed(2))
	s.notify(ctx, saved)
	return saved, nil
}

// abortedOr reports a placement whose deadline passed or whose caller went
// away as a retryable conflict.
func abortedOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: order placement aborted: %w", models.ErrConflict, ctxErr)
	}
	return err
}

// compensate restores applied decrements in reverse order. It runs on a
// context detached from the request so an expired deadline cannot strand
// stock. Restoration failures are logged and appended to cause without
// exposing their sentinels.
func (s *orderService) compensate(ctx context.Context, applied []models.StockDecrement, cause error) error {
	if len(applied) == 0 {
		return cause
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
	defer cancel()

	errs := []error{cause}
	for i := len(applied) - 1; i >= 0; i-- {
		d := applied[i]
		if err := s.products.IncrementStock(cctx, d.ProductID, d.Quantity); err != nil {
			log.Printf("ERROR: failed to restore %d units of product %s: %v", d.Quantity, d.ProductID, err)
			s.cfg.Metrics.ObserveCompensation(false)
			errs = append(errs, fmt.Errorf("restore %d units of product %s: %v", d.Quantity, d.ProductID, err))
			continue
		}
		s.cfg.Metrics.ObserveCompensation(true)
		log.Printf("INFO: restored %d units of product %s", d.Quantity, d.ProductID)
	}
	return errors.Join(errs...)
}

func (s *orderService) settleIdempotencyKey(ctx context.Context, key string, order *models.Order, placeErr error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
	defer cancel()

	if placeErr != nil {
		if err := s.cfg.Idempotency.Release(sctx, key); err != nil {
			log.Printf("WARN: failed to release idempotency key %s: %v", key, err)
		}
		return
	}
	if err := s.cfg.Idempotency.Complete(sctx, key, order.ID, s.cfg.IdempotencyTTL); err != nil {
		log.Printf("WARN: failed to record idempotency key %s for order %s: %v", key, order.ID, err)
	}
}

func (s *orderService) notify(ctx context.Context, order *models.Order) {
	if s.cfg.Notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
	defer cancel()
	if err := s.cfg.Notifier.NotifyOrderPlaced(nctx, order); err != nil {
		log.Printf("WARN: failed to notify farmers of order %s: %v", order.ID, err)
	}
}

func placementOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomePlaced
	case errors.Is(err, models.ErrValidation):
		return metrics.OutcomeValidation
	case errors.Is(err, models.ErrUnauthenticated), errors.Is(err, models.ErrForbidden):
		return metrics.OutcomeForbidden
	case errors.Is(err, models.ErrInsufficientStock):
		return metrics.OutcomeInsufficientStock
	case errors.Is(err, models.ErrProductNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, models.ErrConflict):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeStorage
	}
}

func (s *orderService) ListBuyerHistory(ctx context.Context, identity models.Identity) ([]*models.Order, error) {
	if err := Authorize(identity, OpBuyerHistory); err != nil {
		return nil, err
	}
	return s.orders.FindByBuyer(ctx, identity.UserID)
}

func (s *orderService) ListFarmerIncoming(ctx context.Context, identity models.Identity) ([]*models.FarmerOrder, error) {
	if err := Authorize(identity, OpFarmerIncoming); err != nil {
		return nil, err
	}
	orders, err := s.orders.FindByFarmerInItems(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	views := make([]*models.FarmerOrder, 0, len(orders))
	for _, order := range orders {
		views = append(views, models.NewFarmerOrder(order, identity.UserID))
	}
	return views, nil
}

// GetOrder returns an order to its buyer or to any farmer with lines in it.
func (s *orderService) GetOrder(ctx context.Context, identity models.Identity, orderID uuid.UUID) (*models.Order, error) {
	if !identity.Authenticated() {
		return nil, models.ErrUnauthenticated
	}
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canView(identity, order) {
		return nil, fmt.Errorf("%w: order %s belongs to another user", models.ErrForbidden, orderID)
	}
	return order, nil
}

func canView(identity models.Identity, order *models.Order) bool {
	if order.BuyerID == identity.UserID {
		return true
	}
	return identity.Role == models.RoleFarmer && order.HasFarmer(identity.UserID)
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, identity models.Identity, orderID uuid.UUID, status models.OrderStatus) (*models.Order, error) {
	if err := Authorize(identity, OpUpdateOrderStatus); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, models.NewValidationError("status", fmt.Sprintf("unknown order status %q", status))
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.HasFarmer(identity.UserID) {
		return nil, fmt.Errorf("%w: order %s has no items from this farmer", models.ErrForbidden, orderID)
	}
	if !order.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s to %s", models.ErrInvalidTransition, order.Status, status)
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, order.Status, status)
	if err != nil {
		return nil, err
	}
	log.Printf("INFO: order %s moved from %s to %s by farmer %s", orderID, order.Status, status, identity.UserID)

	if status == models.OrderStatusCancelled {
		s.restoreCancelledStock(ctx, updated)
	}
	return updated, nil
}

// restoreCancelledStock returns every line of a cancelled order to the
// catalog. Products deleted since the order was placed are skipped.
func (s *orderService) restoreCancelledStock(ctx context.Context, order *models.Order) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
	defer cancel()

	for _, d := range mergeItems(order.Items) {
		err := s.products.IncrementStock(rctx, d.ProductID, d.Quantity)
		switch {
		case err == nil:
			s.cfg.Metrics.ObserveCompensation(true)
		case errors.Is(err, models.ErrProductNotFound):
			log.Printf("INFO: product %s from cancelled order %s no longer exists", d.ProductID, order.ID)
		default:
			s.cfg.Metrics.ObserveCompensation(false)
			log.Printf("ERROR: failed to restore %d units of product %s for cancelled order %s: %v", d.Quantity, d.ProductID, order.ID, err)
		}
	}
}

func mergeItems(items []models.OrderItem) []models.StockDecrement {
	at := make(map[uuid.UUID]int)
	var merged []models.StockDecrement
	for _, item := range items {
		if i, ok := at[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		at[item.ProductID] = len(merged)
		merged = append(merged, models.StockDecrement{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return merged
}
