package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"hawkinsfarm/internal/common"
	"hawkinsfarm/internal/models"
	"hawkinsfarm/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// MaxImageSize caps product image uploads.
const MaxImageSize = 5 << 20

// ProductHandlers handles HTTP requests for products
type ProductHandlers struct {
	productService services.ProductService
}

func NewProductHandlers(productService services.ProductService) *ProductHandlers {
	return &ProductHandlers{productService: productService}
}

func productIDParam(c echo.Context) (uuid.UUID, error) {
	return common.ValidateUUID(c.Param("id"), "id")
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

// ListMarketplace godoc
// @Summary  In-stock products, newest first
// @Tags     products
// @Produce  json
// @Param    limit   query  int  false  "Page size (default 50)"
// @Param    offset  query  int  false  "Offset"
// @Success  200  {array}  models.Product
// @Router   /products [get]
func (h *ProductHandlers) ListMarketplace(c echo.Context) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return common.SendValidationError(c, "limit", err.Error())
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return common.SendValidationError(c, "offset", err.Error())
	}
	limit, offset, err = common.ValidatePaginationParams(limit, offset)
	if err != nil {
		return common.SendValidationError(c, "offset", err.Error())
	}

	products, err := h.productService.Marketplace(c.Request().Context(), limit, offset)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"products": products,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetProduct godoc
// @Summary  Get a product
// @Tags     products
// @Produce  json
// @Param    id  path  string  true  "Product ID"
// @Success  200  {object}  models.Product
// @Router   /products/{id} [get]
func (h *ProductHandlers) GetProduct(c echo.Context) error {
	id, err := productIDParam(c)
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	product, err := h.productService.GetByID(c.Request().Context(), id)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

// BatchGetProducts godoc
// @Summary  Look up several products by id
// @Tags     products
// @Accept   json
// @Produce  json
// @Param    request  body  models.ProductBatchRequest  true  "Product ids"
// @Success  200  {array}  models.Product
// @Router   /products/batch [post]
func (h *ProductHandlers) BatchGetProducts(c echo.Context) error {
	var req models.ProductBatchRequest
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "body", "Invalid request format")
	}
	products, err := h.productService.GetMany(c.Request().Context(), req)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, products)
}

// ListMine godoc
// @Summary   The calling farmer's listings
// @Tags      products
// @Produce   json
// @Success   200  {array}  models.Product
// @Security  BearerAuth
// @Router    /products/mine [get]
func (h *ProductHandlers) ListMine(c echo.Context) error {
	products, err := h.productService.ListMine(c.Request().Context(), identity(c))
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, products)
}

// CreateProduct godoc
// @Summary   List a new product
// @Tags      products
// @Accept    json
// @Produce   json
// @Param     product  body  models.ProductInput  true  "Product"
// @Success   201  {object}  models.Product
// @Security  BearerAuth
// @Router    /products [post]
func (h *ProductHandlers) CreateProduct(c echo.Context) error {
	var input models.ProductInput
	if err := c.Bind(&input); err != nil {
		return common.SendValidationError(c, "body", "Invalid request format")
	}
	product, err := h.productService.Create(c.Request().Context(), identity(c), input)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, product)
}

// UpdateProduct godoc
// @Summary   Update one of the caller's products
// @Tags      products
// @Accept    json
// @Produce   json
// @Param     id       path  string              true  "Product ID"
// @Param     product  body  models.ProductInput  true  "Product"
// @Success   200  {object}  models.Product
// @Security  BearerAuth
// @Router    /products/{id} [put]
func (h *ProductHandlers) UpdateProduct(c echo.Context) error {
	id, err := productIDParam(c)
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	var input models.ProductInput
	if err := c.Bind(&input); err != nil {
		return common.SendValidationError(c, "body", "Invalid request format")
	}
	product, err := h.productService.Update(c.Request().Context(), identity(c), id, input)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

// DeleteProduct godoc
// @Summary   Remove one of the caller's products
// @Tags      products
// @Param     id  path  string  true  "Product ID"
// @Success   204
// @Security  BearerAuth
// @Router    /products/{id} [delete]
func (h *ProductHandlers) DeleteProduct(c echo.Context) error {
	id, err := productIDParam(c)
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	if err := h.productService.Delete(c.Request().Context(), identity(c), id); err != nil {
		return common.SendDomainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// UploadImage godoc
// @Summary   Attach an image to a product
// @Tags      products
// @Accept    multipart/form-data
// @Produce   json
// @Param     id     path      string  true  "Product ID"
// @Param     image  formData  file    true  "Image file (max 5 MiB)"
// @Success   200  {object}  models.Product
// @Security  BearerAuth
// @Router    /products/{id}/image [post]
func (h *ProductHandlers) UploadImage(c echo.Context) error {
	id, err := productIDParam(c)
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	file, err := c.FormFile("image")
	if err != nil {
		return common.SendValidationError(c, "image", "image file is required")
	}
	if file.Size > MaxImageSize {
		return common.SendValidationError(c, "image", fmt.Sprintf("image must be at most %d bytes", MaxImageSize))
	}

	src, err := file.Open()
	if err != nil {
		return common.SendValidationError(c, "image", "could not read upload")
	}
	defer src.Close()

	contentType := file.Header.Get(echo.HeaderContentType)
	product, err := h.productService.UploadImage(c.Request().Context(), identity(c), id, file.Filename, contentType, src, file.Size)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}
