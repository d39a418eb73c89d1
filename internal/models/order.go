package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultPaymentMethod is used when the buyer does not pick one.
const DefaultPaymentMethod = "Cash on Delivery"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderItem is a snapshot of a product line at order time. It has no
// identity of its own outside the order that embeds it.
type OrderItem struct {
	ProductID uuid.UUID       `json:"product_id" db:"product_id"`
	Name      string          `json:"name" db:"name"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"`
	FarmerID  uuid.UUID       `json:"farmer_id" db:"farmer_id"`
}

// LineTotal is price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	BuyerID         uuid.UUID       `json:"buyer_id" db:"buyer_id"`
	Items           []OrderItem     `json:"items"`
	Status          OrderStatus     `json:"status" db:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount" db:"total_amount"`
	ShippingAddress string          `json:"shipping_address" db:"shipping_address"`
	PaymentMethod   string          `json:"payment_method" db:"payment_method"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// HasFarmer reports whether any line belongs to farmerID.
func (o *Order) HasFarmer(farmerID uuid.UUID) bool {
	for _, item := range o.Items {
		if item.FarmerID == farmerID {
			return true
		}
	}
	return false
}

// Partition splits the order lines by owning farmer.
func (o *Order) Partition() []FarmerShare {
	return PartitionByFarmer(o.Items)
}

// FarmerShare is the part of an order owned by one farmer.
type FarmerShare struct {
	FarmerID uuid.UUID
	Items    []OrderItem
	Subtotal decimal.Decimal
}

// Units is the number of units across the share's lines.
func (f FarmerShare) Units() int {
	n := 0
	for _, item := range f.Items {
		n += item.Quantity
	}
	return n
}

// PartitionByFarmer groups lines by FarmerID. Farmers appear in the order
// their first line does and lines keep their relative order.
func PartitionByFarmer(items []OrderItem) []FarmerShare {
	var shares []FarmerShare
	at := make(map[uuid.UUID]int)
	for _, item := range items {
		idx, ok := at[item.FarmerID]
		if !ok {
			idx = len(shares)
			at[item.FarmerID] = idx
			shares = append(shares, FarmerShare{FarmerID: item.FarmerID, Subtotal: decimal.Zero})
		}
		shares[idx].Items = append(shares[idx].Items, item)
		shares[idx].Subtotal = shares[idx].Subtotal.Add(item.LineTotal())
	}
	return shares
}

// MaxItemQuantity bounds a single cart line. Stock and line quantities are
// stored as INTEGER columns.
const MaxItemQuantity = math.MaxInt32

// ItemRequest is one requested cart line.
type ItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// PlaceOrderRequest is the inbound "place order" payload.
type PlaceOrderRequest struct {
	Items           []ItemRequest `json:"items"`
	ShippingAddress string        `json:"shipping_address"`
	PaymentMethod   string        `json:"payment_method,omitempty"`
	IdempotencyKey  string        `json:"-"`
}

// Validate rejects malformed requests before any storage is touched and
// fills in the default payment method.
func (r *PlaceOrderRequest) Validate() error {
	r.ShippingAddress = strings.TrimSpace(r.ShippingAddress)
	r.PaymentMethod = strings.TrimSpace(r.PaymentMethod)
	if r.ShippingAddress == "" {
		return NewValidationError("shipping_address", "shipping address is required")
	}
	if err := ValidateItemRequests(r.Items); err != nil {
		return err
	}
	if r.PaymentMethod == "" {
		r.PaymentMethod = DefaultPaymentMethod
	}
	return nil
}

// ValidateItemRequests checks list shape only; stock is checked by the builder.
func ValidateItemRequests(items []ItemRequest) error {
	if len(items) == 0 {
		return NewValidationError("items", "at least one item is required")
	}
	for i, item := range items {
		if item.ProductID == uuid.Nil {
			return NewValidationError(fmt.Sprintf("items[%d].product_id", i), "product_id is required")
		}
		if item.Quantity <= 0 {
			return NewValidationError(fmt.Sprintf("items[%d].quantity", i), "quantity must be a positive integer")
		}
		if item.Quantity > MaxItemQuantity {
			return NewValidationError(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("quantity must not exceed %d", MaxItemQuantity))
		}
	}
	return nil
}

// StockDecrement is a pending reduction of one product's stock.
type StockDecrement struct {
	ProductID uuid.UUID
	Quantity  int
}

// OrderDraft is a validated, priced order that has not been persisted.
type OrderDraft struct {
	Items       []OrderItem
	TotalAmount decimal.Decimal
	Decrements  []StockDecrement
}

// NewOrder turns the draft into a Pending order for buyerID.
func (d *OrderDraft) NewOrder(buyerID uuid.UUID, shippingAddress, paymentMethod string) *Order {
	items := make([]OrderItem, len(d.Items))
	copy(items, d.Items)
	return &Order{
		BuyerID:         buyerID,
		Items:           items,
		Status:          OrderStatusPending,
		TotalAmount:     d.TotalAmount,
		ShippingAddress: shippingAddress,
		PaymentMethod:   paymentMethod,
	}
}

// FarmerOrder is the farmer-facing view of an order: the whole order plus
// the subset of lines that farmer owns.
type FarmerOrder struct {
	Order          *Order          `json:"order"`
	FarmerItems    []OrderItem     `json:"farmer_items"`
	FarmerSubtotal decimal.Decimal `json:"farmer_subtotal"`
}

func NewFarmerOrder(order *Order, farmerID uuid.UUID) *FarmerOrder {
	for _, share := range order.Partition() {
		if share.FarmerID == farmerID {
			return &FarmerOrder{Order: order, FarmerItems: share.Items, FarmerSubtotal: share.Subtotal}
		}
	}
	return &FarmerOrder{Order: order, FarmerSubtotal: decimal.Zero}
}

// Redacted returns a copy whose embedded order only lists the farmer's own
// lines. TotalAmount is left as the full order total.
func (f *FarmerOrder) Redacted() *FarmerOrder {
	order := *f.Order
	order.Items = f.FarmerItems
	return &FarmerOrder{Order: &order, FarmerItems: f.FarmerItems, FarmerSubtotal: f.FarmerSubtotal}
}

// StatusUpdateRequest is the payload for a status transition
type StatusUpdateRequest struct {
	Status OrderStatus `json:"status"`
}
