package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"hawkinsfarm/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorResponse(t *testing.T) {
	productID := uuid.New()
	stockErr := &models.ItemError{Line: 1, ProductID: productID, Requested: 8, Available: 5, Err: models.ErrInsufficientStock}

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", models.NewValidationError("items", "at least one item is required"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid transition", fmt.Errorf("wrap: %w", models.ErrInvalidTransition), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unauthenticated", models.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", models.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"product not found", &models.ItemError{ProductID: productID, Err: models.ErrProductNotFound}, http.StatusNotFound, "NOT_FOUND"},
		{"order not found", models.ErrOrderNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"insufficient stock", stockErr, http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK"},
		{"conflict", fmt.Errorf("decrement: %w", models.ErrConflict), http.StatusConflict, "CONFLICT"},
		{"user exists", models.ErrUserExists, http.StatusConflict, "CONFLICT"},
		{"storage", models.StorageError("save order", errors.New("connection reset")), http.StatusInternalServerError, "SERVER_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := DomainErrorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestDomainErrorResponse_StockDetails(t *testing.T) {
	productID := uuid.New()
	err := fmt.Errorf("build order: %w", &models.ItemError{ProductID: productID, Requested: 8, Available: 5, Err: models.ErrInsufficientStock})

	_, body := DomainErrorResponse(err)
	require.NotNil(t, body.Error.Details)
	assert.Equal(t, productID.String(), body.Error.Details["product_id"])
	assert.Equal(t, "8", body.Error.Details["requested"])
	assert.Equal(t, "5", body.Error.Details["available"])
}

func TestDomainErrorResponse_HidesJoinedCompensationErrors(t *testing.T) {
	err := errors.Join(fmt.Errorf("decrement: %w", models.ErrConflict), errors.New("compensate product: storage failure"))
	_, body := DomainErrorResponse(err)
	assert.Equal(t, models.ErrConflict.Error(), body.Error.Message)
}

func TestIdentityContext(t *testing.T) {
	id := models.Identity{UserID: uuid.New(), Role: models.RoleFarmer}
	ctx := WithIdentity(context.Background(), id)

	got, ok := GetIdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id, got)

	userID, ok := GetUserIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id.UserID, userID)

	_, ok = GetIdentityFromContext(context.Background())
	assert.False(t, ok)
}

func TestValidateUUID(t *testing.T) {
	id := uuid.New()
	got, err := ValidateUUID(" "+id.String()+" ", "id")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ValidateUUID("", "id")
	assert.Error(t, err)
	_, err = ValidateUUID("not-a-uuid", "id")
	assert.Error(t, err)
	_, err = ValidateUUID("zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz", "id")
	assert.Error(t, err)
}

func TestValidatePaginationParams(t *testing.T) {
	limit, offset, err := ValidatePaginationParams(0, -5)
	require.NoError(t, err)
	assert.Equal(t, 50, limit)
	assert.Equal(t, 0, offset)

	limit, _, err = ValidatePaginationParams(5000, 0)
	require.NoError(t, err)
	assert.Equal(t, 1000, limit)

	_, _, err = ValidatePaginationParams(10, 2000000)
	assert.Error(t, err)
}
