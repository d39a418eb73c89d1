package services

import (
	"context"

	"hawkinsfarm/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductReader is the read side of the catalog used to price a cart.
type ProductReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// OrderBuilder turns requested cart lines into a priced draft. It never writes.
type OrderBuilder struct {
	products ProductReader
}

func NewOrderBuilder(products ProductReader) *OrderBuilder {
	return &OrderBuilder{products: products}
}

// Build processes items in submission order and stops at the first failing
// line. Stock is checked against the running total requested for a product,
// so two lines for the same product cannot jointly exceed what is on hand.
func (b *OrderBuilder) Build(ctx context.Context, items []models.ItemRequest) (*models.OrderDraft, error) {
	if err := models.ValidateItemRequests(items); err != nil {
		return nil, err
	}

	draft := &models.OrderDraft{
		Items:       make([]models.OrderItem, 0, len(items)),
		TotalAmount: decimal.Zero,
	}
	requested := make(map[uuid.UUID]int)
	decrementAt := make(map[uuid.UUID]int)

	for line, req := range items {
		product, err := b.products.GetByID(ctx, req.ProductID)
		if err != nil {
			return nil, &models.ItemError{Line: line, ProductID: req.ProductID, Requested: req.Quantity, Err: err}
		}

		// compared against what is left so the running total cannot overflow
		already := requested[product.ID]
		if req.Quantity > product.Quantity-already {
			return nil, &models.ItemError{
				Line:      line,
				ProductID: product.ID,
				Requested: already + req.Quantity,
				Available: product.Quantity,
				Err:       models.ErrInsufficientStock,
			}
		}
		requested[product.ID] = already + req.Quantity

		item := models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  req.Quantity,
			Price:     product.Price,
			FarmerID:  product.FarmerID,
		}
		draft.Items = append(draft.Items, item)
		draft.TotalAmount = draft.TotalAmount.Add(item.LineTotal())

		if idx, ok := decrementAt[product.ID]; ok {
			draft.Decrements[idx].Quantity += req.Quantity
		} else {
			decrementAt[product.ID] = len(draft.Decrements)
			draft.Decrements = append(draft.Decrements, models.StockDecrement{ProductID: product.ID, Quantity: req.Quantity})
		}
	}

	return draft, nil
}
