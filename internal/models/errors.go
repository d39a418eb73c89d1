package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrProductNotFound    = errors.New("product not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrConflict           = errors.New("concurrent modification, retry the request")
	ErrStorage            = errors.New("storage failure")
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrUserExists         = errors.New("username or email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError reports a malformed request field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ItemError identifies the order line that caused a placement failure.
// Line is zero-based in submission order.
type ItemError struct {
	Line      int
	ProductID uuid.UUID
	Requested int
	Available int
	Err       error
}

func (e *ItemError) Error() string {
	switch {
	case errors.Is(e.Err, ErrInsufficientStock):
		return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
	case errors.Is(e.Err, ErrProductNotFound):
		return fmt.Sprintf("product %s not found", e.ProductID)
	default:
		return fmt.Sprintf("item %d (product %s): %v", e.Line, e.ProductID, e.Err)
	}
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// StorageError wraps a repository failure so that it matches ErrStorage
// while keeping the underlying cause reachable.
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
