package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"hawkinsfarm/internal/models"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// Task type definitions
const (
	TypeOrderPlaced = "order:placed"
)

const notificationQueue = "notifications"

// OrderPlacedPayload is what one farmer is told about a new order.
type OrderPlacedPayload struct {
	OrderID   uuid.UUID       `json:"order_id"`
	FarmerID  uuid.UUID       `json:"farmer_id"`
	BuyerID   uuid.UUID       `json:"buyer_id"`
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	PlacedAt  time.Time       `json:"placed_at"`
}

// OrderPlacedPayloads splits an order into one payload per distinct farmer.
func OrderPlacedPayloads(order *models.Order) []OrderPlacedPayload {
	shares := order.Partition()
	payloads := make([]OrderPlacedPayload, 0, len(shares))
	for _, share := range shares {
		payloads = append(payloads, OrderPlacedPayload{
			OrderID:   order.ID,
			FarmerID:  share.FarmerID,
			BuyerID:   order.BuyerID,
			ItemCount: share.Units(),
			Subtotal:  share.Subtotal,
			PlacedAt:  order.CreatedAt,
		})
	}
	return payloads
}

// NewOrderPlacedTask creates a notification task for one farmer
func NewOrderPlacedTask(payload OrderPlacedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOrderPlaced, data), nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier hands order notifications to the asynq worker.
type TaskNotifier struct {
	client Enqueuer
}

func NewTaskNotifier(client Enqueuer) *TaskNotifier {
	return &TaskNotifier{client: client}
}

// NotifyOrderPlaced enqueues every farmer's task and reports all failures.
// The task ID is derived from the order and farmer so a replayed call does
// not notify twice.
func (n *TaskNotifier) NotifyOrderPlaced(ctx context.Context, order *models.Order) error {
	var errs []error
	for _, payload := range OrderPlacedPayloads(order) {
		task, err := NewOrderPlacedTask(payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("farmer %s: %w", payload.FarmerID, err))
			continue
		}
		_, err = n.client.EnqueueContext(ctx, task,
			asynq.Queue(notificationQueue),
			asynq.TaskID(orderPlacedTaskID(payload)),
			asynq.MaxRetry(5),
			asynq.Retention(24*time.Hour),
		)
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			errs = append(errs, fmt.Errorf("farmer %s: %w", payload.FarmerID, err))
		}
	}
	return errors.Join(errs...)
}

func orderPlacedTaskID(p OrderPlacedPayload) string {
	return fmt.Sprintf("%s:%s:%s", TypeOrderPlaced, p.OrderID, p.FarmerID)
}

// FarmerDirectory resolves the farmer a notification is addressed to.
type FarmerDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// OrderPlacedHandler delivers order notifications. Delivery is a log line
// addressed to the farmer's email.
type OrderPlacedHandler struct {
	farmers FarmerDirectory
}

func NewOrderPlacedHandler(farmers FarmerDirectory) *OrderPlacedHandler {
	return &OrderPlacedHandler{farmers: farmers}
}

// ProcessTask implements asynq.Handler.
func (h *OrderPlacedHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload OrderPlacedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal order payload: %v: %w", err, asynq.SkipRetry)
	}

	farmer, err := h.farmers.GetByID(ctx, payload.FarmerID)
	if errors.Is(err, models.ErrUserNotFound) {
		log.Printf("Dropping order %s notification: farmer %s no longer exists", payload.OrderID, payload.FarmerID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up farmer %s: %w", payload.FarmerID, err)
	}

	log.Printf("NOTIFY %s <%s>: order %s includes %d of your units worth %s",
		farmer.FullName, farmer.Email, payload.OrderID, payload.ItemCount, payload.Subtotal.StringFixed(2))
	return nil
}

// NewServeMux registers every task handler the worker runs.
func NewServeMux(orderPlaced *OrderPlacedHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeOrderPlaced, orderPlaced)
	return mux
}

// NewWorker builds the asynq server that drains the notification queue.
func NewWorker(redis asynq.RedisClientOpt, concurrency int) *asynq.Server {
	return asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{notificationQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Printf("ERROR: task %s failed: %v", task.Type(), err)
		}),
	})
}
