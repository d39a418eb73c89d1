package handlers

import (
	"net/http"

	"hawkinsfarm/internal/common"
	"hawkinsfarm/internal/models"
	"hawkinsfarm/internal/services"

	"github.com/labstack/echo/v4"
)

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	authService services.AuthService
}

func NewAuthHandlers(authService services.AuthService) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

// LoginResponse represents the login response
type LoginResponse struct {
	models.TokenResponse
	User *models.User `json:"user,omitempty"`
}

// Register godoc
// @Summary  Create a buyer or farmer account
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    user  body  models.RegisterRequest  true  "Account"
// @Success  201  {object}  LoginResponse
// @Failure  409  {object}  common.ErrorResponse
// @Router   /auth/register [post]
func (h *AuthHandlers) Register(c echo.Context) error {
	var req models.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "body", "Invalid request format")
	}

	user, err := h.authService.Register(c.Request().Context(), req)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	token, err := h.authService.GenerateToken(user)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, LoginResponse{TokenResponse: *token, User: user})
}

// Login godoc
// @Summary  Exchange a username or email and password for a token
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    credentials  body  models.LoginRequest  true  "Credentials"
// @Success  200  {object}  models.TokenResponse
// @Failure  401  {object}  common.ErrorResponse
// @Router   /auth/login [post]
func (h *AuthHandlers) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "body", "Invalid request format")
	}

	token, err := h.authService.Login(c.Request().Context(), req)
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, token)
}

// Me godoc
// @Summary   The authenticated user
// @Tags      auth
// @Produce   json
// @Success   200  {object}  models.User
// @Security  BearerAuth
// @Router    /me [get]
func (h *AuthHandlers) Me(c echo.Context) error {
	user, err := h.authService.CurrentUser(c.Request().Context(), identity(c))
	if err != nil {
		return common.SendDomainError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}
