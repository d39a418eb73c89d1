package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"hawkinsfarm/internal/models"
	"hawkinsfarm/internal/repositories"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenIssuer     = "hawkinsfarm-auth"
	minPasswordLen  = 8
	defaultTokenTTL = 24 * time.Hour
)

// AuthService registers users and issues the JWTs the API middleware verifies.
type AuthService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.TokenResponse, error)
	GenerateToken(user *models.User) (*models.TokenResponse, error)
	ValidateToken(token string) (*models.TokenClaims, error)
	CurrentUser(ctx context.Context, identity models.Identity) (*models.User, error)
}

type authService struct {
	userRepo  repositories.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

func NewAuthService(userRepo repositories.UserRepository, jwtSecret string, tokenTTL time.Duration) AuthService {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &authService{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

func validateRegistration(req *models.RegisterRequest) error {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)

	var errs []error
	if req.Username == "" {
		errs = append(errs, models.NewValidationError("username", "username is required"))
	}
	if _, err := mail.ParseAddress(req.Email); err != nil || req.Email == "" {
		errs = append(errs, models.NewValidationError("email", "a valid email is required"))
	}
	if len(req.Password) < minPasswordLen {
		errs = append(errs, models.NewValidationError("password", fmt.Sprintf("password must be at least %d characters", minPasswordLen)))
	}
	if req.FullName == "" {
		errs = append(errs, models.NewValidationError("full_name", "full name is required"))
	}
	if !req.Role.Valid() {
		errs = append(errs, models.NewValidationError("role", "role must be Buyer or Farmer"))
	}
	return errors.Join(errs...)
}

func (s *authService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	if err := validateRegistration(&req); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
		FullName:     req.FullName,
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		Role:         req.Role,
		Address:      strings.TrimSpace(req.Address),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	log.Printf("INFO: registered %s %s (%s)", user.Role, user.Username, user.ID)
	return user, nil
}

func (s *authService) Login(ctx context.Context, req models.LoginRequest) (*models.TokenResponse, error) {
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		return nil, models.NewValidationError("login", "login and password are required")
	}

	user, err := s.userRepo.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return s.GenerateToken(user)
}

func (s *authService) GenerateToken(user *models.User) (*models.TokenResponse, error) {
	now := s.now()
	claims := models.TokenClaims{
		UserID: user.ID.String(),
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign JWT: %w", err)
	}

	return &models.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
		UserID:      user.ID.String(),
		Role:        user.Role,
		IssuedAt:    now,
	}, nil
}

// ValidateToken verifies an HS256 token issued by this service.
func (s *authService) ValidateToken(token string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
	}
	if !parsed.Valid {
		return nil, models.ErrUnauthenticated
	}
	return claims, nil
}

func (s *authService) CurrentUser(ctx context.Context, identity models.Identity) (*models.User, error) {
	if !identity.Authenticated() {
		return nil, models.ErrUnauthenticated
	}
	return s.userRepo.GetByID(ctx, identity.UserID)
}
