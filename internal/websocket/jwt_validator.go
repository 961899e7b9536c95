package websocket

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned when JWT validation fails
var ErrInvalidToken = errors.New("invalid token")

// ErrSchoolClaimMissing is returned when the token carries no school claim
var ErrSchoolClaimMissing = errors.New("school claim missing")

// SessionClaims contains the namespaced custom claims issued by the identity
// provider. The school claim is the tenant boundary for every connection.
type SessionClaims struct {
	School string `json:"https://campusfee.app/school"`
	Role   string `json:"https://campusfee.app/role"`
}

// Validate implements validator.CustomClaims
func (c SessionClaims) Validate(ctx context.Context) error {
	return nil
}

// Auth0JWTValidator validates Auth0 JWT tokens for WebSocket connections
type Auth0JWTValidator struct {
	validator *validator.Validator
}

// NewAuth0JWTValidator creates a new Auth0JWTValidator
func NewAuth0JWTValidator(domain, audience string) (*Auth0JWTValidator, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, err
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &SessionClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	return &Auth0JWTValidator{validator: jwtValidator}, nil
}

// ValidateToken validates a JWT token and returns the school it is scoped to
func (v *Auth0JWTValidator) ValidateToken(token string) (schoolID uuid.UUID, err error) {
	ctx := context.Background()

	claims, err := v.validator.ValidateToken(ctx, token)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}

	custom, ok := validatedClaims.CustomClaims.(*SessionClaims)
	if !ok || custom.School == "" {
		return uuid.Nil, ErrSchoolClaimMissing
	}

	schoolID, err = uuid.Parse(custom.School)
	if err != nil {
		return uuid.Nil, ErrSchoolClaimMissing
	}

	return schoolID, nil
}
