package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"hawkinsfarm/internal/common"
	"hawkinsfarm/internal/models"
	"hawkinsfarm/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// IdempotencyHeader lets a client retry a placement without ordering twice.
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

// OrderHandlers handles HTTP requests for orders
type OrderHandlers struct {
	orderService services.OrderService
}

func NewOrderHandlers(orderService services.OrderService) *OrderHandlers {
	return &OrderHandlers{orderService: orderService}
}

// identity returns the caller attached by the JWT middleware. Handlers
// mounted behind it always have one; the zero Identity fails authorization.
func identity(c echo.Context) models.Identity {
	id, _ := common.GetIdentityFromContext(c.Request().Context())
	return id
}

func orderIDParam(c echo.Context) (uuid.UUID, error) {
	return common.ValidateUUID(c.Param("id"), "id")
}

// PlaceOrder godoc
// @Summary      Place an order
// @Description  Reserves stock for every line and records the order. Either every line is reserved or nothing changes.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        order            body    models.PlaceOrderRequest  true   "Cart"
// @Param        Idempotency-Key  header  string                    false  "Client retry key"
// @Success      201  {object}  models.Order
// @Failure      400  {object}  common.ErrorResponse
// @Failure      403  {object}  common.ErrorResponse
// @Failure      404  {object}  common.ErrorResponse
// @Failure      409  {object}  common.ErrorResponse
// @Failure      422  {object}  common.ErrorResponse
// @Security     BearerAuth
// @Router       /orders [post]
func (h *OrderHandlers) PlaceOrder(c echo.Context) error {
	var req models.PlaceOrderRequest
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "body", "Invalid request format")
	}

	req.IdempotencyKey = strings.TrimSpace(c.Request().Header.Get(IdempotencyHeader))
	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		return common.SendValidationError(c, IdempotencyHeader, fmt.Sprintf("must be at most %d characters", maxIdempotencyKeyLen))
	}

	order, err := h.orderService.PlaceOrder(c.Request().Context(), identity(c), req)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, order)
}

// ListHistory godoc
// @Summary   Orders placed by the caller, newest first
// @Tags      orders
// @Produce   json
// @Success   200  {array}  models.Order
// @Security  BearerAuth
// @Router    /orders/history [get]
func (h *OrderHandlers) ListHistory(c echo.Context) error {
	orders, err := h.orderService.ListBuyerHistory(c.Request().Context(), identity(c))
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

// ListFarmerOrders godoc
// @Summary      Orders containing the calling farmer's products
// @Description  view=full (default) returns each whole order; view=own trims order.items to the farmer's own lines.
// @Tags         orders
// @Produce      json
// @Param        view  query  string  false  "full or own"
// @Success      200  {array}  models.FarmerOrder
// @Security     BearerAuth
// @Router       /orders/farmer [get]
func (h *OrderHandlers) ListFarmerOrders(c echo.Context) error {
	view := c.QueryParam("view")
	if view != "" && view != "full" && view != "own" {
		return common.SendValidationError(c, "view", "view must be full or own")
	}

	orders, err := h.orderService.ListFarmerIncoming(c.Request().Context(), identity(c))
	if err != nil {
		return common.SendDomainError(c, err)
	}
	if view == "own" {
		for i, o := range orders {
			orders[i] = o.Redacted()
		}
	}
	return c.JSON(http.StatusOK, orders)
}

// GetOrder godoc
// @Summary   Get an order
// @Tags      orders
// @Produce   json
// @Param     id  path  string  true  "Order ID"
// @Success   200  {object}  models.Order
// @Security  BearerAuth
// @Router    /orders/{id} [get]
func (h *OrderHandlers) GetOrder(c echo.Context) error {
	id, err := orderIDParam(c)
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	order, err := h.orderService.GetOrder(c.Request().Context(), identity(c), id)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// UpdateStatus godoc
// @Summary   Move an order along its lifecycle
// @Tags      orders
// @Accept    json
// @Produce   json
// @Param     id      path  string                      true  "Order ID"
// @Param     status  body  models.StatusUpdateRequest  true  "New status"
// @Success   200  {object}  models.Order
// @Security  BearerAuth
// @Router    /orders/{id}/status [put]
func (h *OrderHandlers) UpdateStatus(c echo.Context) error {
	id, err := orderIDParam(c)
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	var req models.StatusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "body", "Invalid request format")
	}

	order, err := h.orderService.UpdateOrderStatus(c.Request().Context(), identity(c), id, req.Status)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// Receipt godoc
// @Summary   Download an order receipt
// @Tags      orders
// @Produce   application/pdf
// @Param     id  path  string  true  "Order ID"
// @Success   200  {file}  binary
// @Security  BearerAuth
// @Router    /orders/{id}/receipt [get]
func (h *OrderHandlers) Receipt(c echo.Context) error {
	id, err := orderIDParam(c)
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	order, err := h.orderService.GetOrder(c.Request().Context(), identity(c), id)
	if err != nil {
		return common.SendDomainError(c, err)
	}

	pdf, err := RenderReceipt(order)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="receipt-%s.pdf"`, order.ID))
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}
