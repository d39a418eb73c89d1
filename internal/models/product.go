package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	FarmerID    uuid.UUID       `json:"farmer_id" db:"farmer_id"`
	Name        string          `json:"name" db:"name"`
	Description *string         `json:"description" db:"description"`
	Category    string          `json:"category" db:"category"`
	ImageURL    *string         `json:"image_url" db:"image_url"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Quantity    int             `json:"quantity" db:"quantity"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// ProductInput carries the farmer-editable product fields
type ProductInput struct {
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

// Validate checks required fields and the price/quantity bounds.
func (in *ProductInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	if in.Name == "" {
		return NewValidationError("name", "name is required")
	}
	if in.Category == "" {
		return NewValidationError("category", "category is required")
	}
	if in.Price.IsNegative() {
		return NewValidationError("price", "price cannot be negative")
	}
	if !in.Price.Equal(in.Price.Round(2)) {
		return NewValidationError("price", "price cannot have more than 2 decimal places")
	}
	if in.Quantity < 0 {
		return NewValidationError("quantity", "quantity cannot be negative")
	}
	if in.Quantity > MaxItemQuantity {
		return NewValidationError("quantity", "quantity is too large")
	}
	return nil
}

// Apply copies the input onto the product.
func (in *ProductInput) Apply(p *Product) {
	p.Name = in.Name
	p.Description = in.Description
	p.Category = in.Category
	p.Price = in.Price
	p.Quantity = in.Quantity
}

// MaxBatchLookup caps the ids accepted by one batch lookup.
const MaxBatchLookup = 100

// ProductBatchRequest asks for several products at once.
type ProductBatchRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

func (r *ProductBatchRequest) Validate() error {
	if len(r.IDs) == 0 {
		return NewValidationError("ids", "at least one id is required")
	}
	if len(r.IDs) > MaxBatchLookup {
		return NewValidationError("ids", fmt.Sprintf("at most %d ids per request", MaxBatchLookup))
	}
	for i, id := range r.IDs {
		if id == uuid.Nil {
			return NewValidationError(fmt.Sprintf("ids[%d]", i), "id is required")
		}
	}
	return nil
}
