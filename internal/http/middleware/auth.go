package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

// CallerIDKey is the gin context key holding the authenticated caller
// identity, consumed by the rate limiter and the request logger.
const CallerIDKey = "caller_id"

// AuthMiddleware accepts either a JWT signed with the shared HS256 secret or
// the static API key (compared against its bcrypt hash). Both arrive as
// bearer tokens.
type AuthMiddleware struct {
	log        *logger.Logger
	jwtSecret  []byte
	apiKeyHash []byte
}

func NewAuthMiddleware(log *logger.Logger, jwtSecret, apiKeyHash string) (*AuthMiddleware, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if jwtSecret == "" && apiKeyHash == "" {
		return nil, fmt.Errorf("at least one of JWT secret or API key hash required")
	}
	return &AuthMiddleware{
		log:        log.With("middleware", "AuthMiddleware"),
		jwtSecret:  []byte(jwtSecret),
		apiKeyHash: []byte(apiKeyHash),
	}, nil
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}

		caller, err := am.authenticate(token)
		if err != nil {
			am.log.Debug("auth rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}
		c.Set(CallerIDKey, caller)
		c.Next()
	}
}

func (am *AuthMiddleware) authenticate(token string) (string, error) {
	if len(am.apiKeyHash) > 0 {
		if err := bcrypt.CompareHashAndPassword(am.apiKeyHash, []byte(token)); err == nil {
			return "api-key", nil
		}
	}
	if len(am.jwtSecret) == 0 {
		return "", fmt.Errorf("api key mismatch")
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return am.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("missing subject claim")
	}
	return sub, nil
}

func extractBearer(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}

// CallerID returns the authenticated caller identity, falling back to the
// client IP for unauthenticated routes.
func CallerID(c *gin.Context) string {
	if v, ok := c.Get(CallerIDKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return c.ClientIP()
}
