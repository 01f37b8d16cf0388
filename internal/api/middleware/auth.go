// Package middleware provides HTTP middleware for the Gin router.
//
// Go Learning Note — Middleware Pattern (Gin):
// In Gin, middleware is any gin.HandlerFunc. Each one runs, optionally calls
// c.Next() to pass control down the chain, and can call c.Abort() to stop it.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rideescrow/internal/domain/entities"
)

// CallerKey stores the authenticated caller's entities.Address in the
// gin.Context.
const CallerKey = "caller"

// TokenVerifier resolves a bearer token to the address it was issued for.
type TokenVerifier interface {
	Verify(token string) (entities.Address, error)
}

// BearerAuth authenticates "Authorization: Bearer <jwt>" and stores the
// caller address for the handlers. Every contract call made by a handler is
// made on behalf of this address.
func BearerAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		caller, err := verifier.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(CallerKey, caller)
		c.Next()
	}
}

// GetCaller returns the address set by BearerAuth. ok is false when the
// route was not mounted behind BearerAuth.
func GetCaller(c *gin.Context) (entities.Address, bool) {
	value, exists := c.Get(CallerKey)
	if !exists {
		return entities.Address{}, false
	}
	caller, ok := value.(entities.Address)
	return caller, ok
}
