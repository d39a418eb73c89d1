package middleware

import (
	"fmt"
	"log"
	"time"

	"hawkinsfarm/internal/common"
	"hawkinsfarm/internal/models"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

const tokenContextKey = "user"

// JWTConfig builds the echo-jwt configuration. Tokens are verified against
// the JWKS when one is given, otherwise against the shared HS256 secret.
func JWTConfig(secret string, jwks *keyfunc.JWKS) echojwt.Config {
	cfg := echojwt.Config{
		ContextKey: tokenContextKey,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(models.TokenClaims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return common.SendUnauthorizedError(c)
		},
	}
	if jwks != nil {
		cfg.KeyFunc = jwks.Keyfunc
	} else {
		cfg.SigningKey = []byte(secret)
		cfg.SigningMethod = echojwt.AlgorithmHS256
	}
	return cfg
}

// JWT verifies the bearer token and attaches the caller's identity.
func JWT(secret string, jwks *keyfunc.JWKS) echo.MiddlewareFunc {
	verify := echojwt.WithConfig(JWTConfig(secret, jwks))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return verify(Identity(next))
	}
}

// FetchJWKS loads the identity provider's key set and keeps it refreshed
// until EndBackground is called.
func FetchJWKS(url string) (*keyfunc.JWKS, error) {
	jwks, err := keyfunc.Get(url, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Printf("WARN: JWKS refresh from %s failed: %v", url, err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", url, err)
	}
	return jwks, nil
}

// Identity turns verified token claims into a models.Identity on the
// request context.
func Identity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := c.Get(tokenContextKey).(*jwt.Token)
		if !ok {
			return common.SendUnauthorizedError(c)
		}
		claims, ok := token.Claims.(*models.TokenClaims)
		if !ok {
			return common.SendUnauthorizedError(c)
		}
		identity, err := identityFromClaims(claims)
		if err != nil {
			return common.SendUnauthorizedError(c)
		}

		c.SetRequest(c.Request().WithContext(common.WithIdentity(c.Request().Context(), identity)))
		return next(c)
	}
}

func identityFromClaims(claims *models.TokenClaims) (models.Identity, error) {
	raw := claims.UserID
	if raw == "" {
		raw = claims.Subject
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: invalid user_id claim", models.ErrUnauthenticated)
	}
	identity := models.Identity{UserID: userID, Role: claims.Role}
	if !identity.Authenticated() {
		return models.Identity{}, fmt.Errorf("%w: invalid role claim %q", models.ErrUnauthenticated, claims.Role)
	}
	return identity, nil
}
