package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/smartfix-dev/smartfix-api/config"
	"github.com/smartfix-dev/smartfix-api/models"
	"github.com/smartfix-dev/smartfix-api/services"
)

const (
	userIDKey = "user_id"
	claimsKey = "validated_claims"
)

// CustomClaims contains the SmartFix claims we want from the token.
type CustomClaims struct {
	Role models.Role `json:"role"`
	Name string      `json:"name"`
}

// Validate rejects tokens carrying an unknown role.
func (c *CustomClaims) Validate(ctx context.Context) error {
	if !c.Role.Valid() {
		return errors.New("token carries an unknown role")
	}
	return nil
}

// EnsureValidToken is a middleware that will check the validity of our JWT
// and that it has not been revoked.
func EnsureValidToken(cfg *config.Config) gin.HandlerFunc {
	secret := []byte(cfg.JWTSecret)
	keyFunc := func(context.Context) (interface{}, error) {
		return secret, nil
	}

	jwtValidator, err := validator.New(
		keyFunc,
		validator.HS256,
		cfg.JWTIssuer,
		[]string{cfg.JWTAudience},
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &CustomClaims{}
			},
		),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up the jwt validator")
	}

	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("Encountered error while validating JWT")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		if _, writeErr := w.Write([]byte(`{"success":false,"error":{"code":"UNAUTHORIZED","message":"Failed to validate JWT."}}`)); writeErr != nil {
			log.Warn().Err(writeErr).Msg("Failed to write error response")
		}
	}

	middleware := jwtmiddleware.New(
		jwtValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
	)

	return func(c *gin.Context) {
		passed := false
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			token, ok := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
			if !ok {
				return
			}

			userID, err := strconv.ParseUint(token.RegisteredClaims.Subject, 10, 64)
			if err != nil || userID == 0 {
				return
			}

			revoked, err := services.GetDenylist().IsRevoked(r.Context(), token.RegisteredClaims.ID)
			if err != nil {
				log.Error().Err(err).Msg("Failed to check token denylist")
				abortWithError(c, http.StatusServiceUnavailable, "TRANSIENT_ERROR", "Could not verify the token right now")
				return
			}
			if revoked {
				return
			}

			// Store the validated claims in Gin context
			passed = true
			c.Request = r
			c.Set(userIDKey, uint(userID))
			c.Set(claimsKey, token)
			c.Next()
		}

		// Use the JWT middleware to check the token
		middleware.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)

		if !passed {
			if c.Writer.Written() {
				c.Abort()
				return
			}
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Token is invalid or has been revoked")
		}
	}
}

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) (uint, error) {
	userID, exists := c.Get(userIDKey)
	if !exists {
		return 0, &AuthError{Code: "MISSING_USER_ID", Message: "User ID not found in context"}
	}

	id, ok := userID.(uint)
	if !ok {
		return 0, &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not numeric"}
	}

	return id, nil
}

// GetClaims extracts the validated JWT claims from the Gin context
func GetClaims(c *gin.Context) (*validator.ValidatedClaims, error) {
	claims, exists := c.Get(claimsKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_CLAIMS", Message: "Claims not found in context"}
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Claims are not in the expected format"}
	}

	return validatedClaims, nil
}

// GetCaller returns the authenticated caller, or the zero Caller when the
// request carries no validated token.
func GetCaller(c *gin.Context) services.Caller {
	id, err := GetUserID(c)
	if err != nil {
		return services.Caller{}
	}
	claims, err := GetClaims(c)
	if err != nil {
		return services.Caller{}
	}
	custom, ok := claims.CustomClaims.(*CustomClaims)
	if !ok {
		return services.Caller{}
	}
	return services.Caller{UserID: id, Role: custom.Role, Name: custom.Name}
}

// GetTokenID returns the jti and expiry of the validated token
func GetTokenID(c *gin.Context) (string, time.Time, error) {
	claims, err := GetClaims(c)
	if err != nil {
		return "", time.Time{}, err
	}
	return claims.RegisteredClaims.ID, time.Unix(claims.RegisteredClaims.Expiry, 0), nil
}

// RequireRole is a middleware that only lets the given roles through
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := GetCaller(c)
		if !caller.IsAuthenticated() {
			abortWithError(c, http.StatusUnauthorized, "MISSING_CLAIMS", "Could not retrieve token claims")
			return
		}

		for _, role := range roles {
			if caller.Role == role {
				c.Next()
				return
			}
		}

		abortWithError(c, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions to access this resource")
	}
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
