package middleware

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// CustomClaims contains the custom claims from Auth0 JWT. The school and role
// are namespaced claims stamped onto the token at login; identity and school
// membership live in the identity provider, not in this service.
type CustomClaims struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	School string `json:"https://campusfee.app/school"`
	Role   string `json:"https://campusfee.app/role"`
	// Student links a student login to its directory record; empty for
	// staff and parents.
	Student string `json:"https://campusfee.app/student"`
}

// Validate implements validator.CustomClaims
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for JWT claims
	ClaimsKey contextKey = "claims"
	// UserIDKey is the context key for the authenticated user ID (subject)
	UserIDKey contextKey = "user_id"
	// SchoolIDKey is the context key for the caller's school ID
	SchoolIDKey contextKey = "school_id"
	// RoleKey is the context key for the caller's role
	RoleKey contextKey = "role"
	// StudentIDKey is the context key for a student caller's own record ID
	StudentIDKey contextKey = "student_id"
)

// Roles known to the fee ledger. Admin and accountant can write; teacher,
// student and parent are read-only.
const (
	RoleAdmin      = "admin"
	RoleAccountant = "accountant"
	RoleTeacher    = "teacher"
	RoleStudent    = "student"
	RoleParent     = "parent"
)

// AuthMiddleware provides JWT validation middleware
type AuthMiddleware struct {
	validator *validator.Validator
}

// NewAuthMiddleware creates a new AuthMiddleware with Auth0 configuration
func NewAuthMiddleware(domain, audience string) (*AuthMiddleware, error) {
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
			return &CustomClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	return &AuthMiddleware{validator: jwtValidator}, nil
}

// Authenticate returns an Echo middleware that validates JWT tokens and
// injects the caller's user ID, school and role into the request context
func (m *AuthMiddleware) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return unauthorizedError(c, "missing authorization header")
			}

			// Check Bearer prefix
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return unauthorizedError(c, "invalid authorization header format")
			}

			token := parts[1]

			// Validate the token
			claims, err := m.validator.ValidateToken(c.Request().Context(), token)
			if err != nil {
				log.Debug().Err(err).Msg("Token validation failed")
				return unauthorizedError(c, "invalid token")
			}

			validatedClaims, ok := claims.(*validator.ValidatedClaims)
			if !ok {
				return unauthorizedError(c, "invalid claims")
			}

			custom, ok := validatedClaims.CustomClaims.(*CustomClaims)
			if !ok || custom.School == "" {
				return unauthorizedError(c, "token has no school claim")
			}

			schoolID, err := uuid.Parse(custom.School)
			if err != nil {
				log.Debug().Err(err).Str("school", custom.School).Msg("Invalid school claim")
				return unauthorizedError(c, "invalid school claim")
			}

			ctx := context.WithValue(c.Request().Context(), ClaimsKey, validatedClaims)
			ctx = context.WithValue(ctx, UserIDKey, validatedClaims.RegisteredClaims.Subject)
			ctx = context.WithValue(ctx, SchoolIDKey, schoolID)
			ctx = context.WithValue(ctx, RoleKey, custom.Role)

			if custom.Student != "" {
				if studentID, err := uuid.Parse(custom.Student); err == nil {
					ctx = context.WithValue(ctx, StudentIDKey, studentID)
				}
			}

			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// RequireRoles returns an Echo middleware that rejects callers whose role is
// not in the allowed set. It must run after Authenticate.
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := GetRole(c)
			if _, ok := allowed[role]; !ok {
				return forbiddenError(c, "Your role does not permit this operation")
			}
			return next(c)
		}
	}
}

// GetUserID extracts the authenticated user ID from the context
func GetUserID(c echo.Context) string {
	if id, ok := c.Request().Context().Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

// GetClaims extracts the validated claims from the context
func GetClaims(c echo.Context) *validator.ValidatedClaims {
	if claims, ok := c.Request().Context().Value(ClaimsKey).(*validator.ValidatedClaims); ok {
		return claims
	}
	return nil
}

// GetSchoolID extracts the school ID from the context
func GetSchoolID(c echo.Context) uuid.UUID {
	if id, ok := c.Request().Context().Value(SchoolIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// GetRole extracts the caller's role from the context
func GetRole(c echo.Context) string {
	if role, ok := c.Request().Context().Value(RoleKey).(string); ok {
		return role
	}
	return ""
}

// GetStudentID extracts a student caller's own record ID from the context.
// Returns uuid.Nil for callers without a student claim.
func GetStudentID(c echo.Context) uuid.UUID {
	if id, ok := c.Request().Context().Value(StudentIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
