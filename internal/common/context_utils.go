package common

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"hawkinsfarm/internal/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	IdentityKey contextKey = "identity"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// CreateErrorResponse creates a standardized error response
func CreateErrorResponse(code string, message string, details map[string]string) *ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	return &resp
}

// SendValidationError sends a validation error response
func SendValidationError(c echo.Context, field, message string) error {
	details := map[string]string{
		field: message,
	}
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("VALIDATION_ERROR", "Validation failed", details))
}

// SendServerError sends a server error response
func SendServerError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, CreateErrorResponse("SERVER_ERROR", message, nil))
}

// SendNotFoundError sends a not found error response
func SendNotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, CreateErrorResponse("NOT_FOUND", fmt.Sprintf("%s not found", resource), nil))
}

// SendUnauthorizedError sends an unauthorized error response
func SendUnauthorizedError(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, CreateErrorResponse("UNAUTHORIZED", "Unauthorized access", nil))
}

// SendForbiddenError sends a forbidden error response
func SendForbiddenError(c echo.Context, message string) error {
	return c.JSON(http.StatusForbidden, CreateErrorResponse("FORBIDDEN", message, nil))
}

// SendDomainError maps a service error onto the HTTP error envelope.
func SendDomainError(c echo.Context, err error) error {
	status, body := DomainErrorResponse(err)
	if status >= http.StatusInternalServerError {
		log.Printf("ERROR: %s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(status, body)
}

// DomainErrorResponse returns the status code and envelope for err.
func DomainErrorResponse(err error) (int, *ErrorResponse) {
	var validationErr *models.ValidationError
	var itemErr *models.ItemError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, CreateErrorResponse("VALIDATION_ERROR", "Validation failed",
			map[string]string{validationErr.Field: validationErr.Message})
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrInvalidTransition):
		return http.StatusBadRequest, CreateErrorResponse("VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, models.ErrUnauthenticated), errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized, CreateErrorResponse("UNAUTHORIZED", err.Error(), nil)
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, CreateErrorResponse("FORBIDDEN", err.Error(), nil)
	case errors.Is(err, models.ErrInsufficientStock):
		var details map[string]string
		if errors.As(err, &itemErr) {
			details = map[string]string{
				"product_id": itemErr.ProductID.String(),
				"requested":  strconv.Itoa(itemErr.Requested),
				"available":  strconv.Itoa(itemErr.Available),
			}
		}
		return http.StatusUnprocessableEntity, CreateErrorResponse("INSUFFICIENT_STOCK", firstLine(err), details)
	case errors.Is(err, models.ErrProductNotFound), errors.Is(err, models.ErrOrderNotFound), errors.Is(err, models.ErrUserNotFound):
		var details map[string]string
		if errors.As(err, &itemErr) {
			details = map[string]string{"product_id": itemErr.ProductID.String()}
		}
		return http.StatusNotFound, CreateErrorResponse("NOT_FOUND", firstLine(err), details)
	case errors.Is(err, models.ErrUserExists):
		return http.StatusConflict, CreateErrorResponse("CONFLICT", err.Error(), nil)
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict, CreateErrorResponse("CONFLICT", models.ErrConflict.Error(), nil)
	default:
		return http.StatusInternalServerError, CreateErrorResponse("SERVER_ERROR", "Internal server error", nil)
	}
}

// firstLine drops errors.Join tails (compensation failures) from client messages.
func firstLine(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}

// ValidateUUID validates UUID format
func ValidateUUID(idStr string, fieldName string) (uuid.UUID, error) {
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		return uuid.Nil, fmt.Errorf("%s is required", fieldName)
	}
	if len(idStr) != 36 {
		return uuid.Nil, fmt.Errorf("%s must be exactly 36 characters (including hyphens)", fieldName)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s contains invalid characters: %v", fieldName, err)
	}
	return id, nil
}

// ValidatePaginationParams clamps pagination parameters
func ValidatePaginationParams(limit, offset int) (int, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	if offset > 1000000 {
		return 0, 0, fmt.Errorf("offset cannot exceed 1,000,000")
	}
	return limit, offset, nil
}

// SafeString safely handles string pointer operations
func SafeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// WithIdentity stores the verified caller on ctx.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id.UserID)
	return context.WithValue(ctx, IdentityKey, id)
}

// GetIdentityFromContext extracts the verified caller from the request context
func GetIdentityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(models.Identity)
	return id, ok
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}
