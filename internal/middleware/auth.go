package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"marketplace-chat/internal/auth"
)

const identityContextKey = "identity"

// TokenValidator resolves a bearer token into an identity.
type TokenValidator interface {
	Validate(token string) (auth.Identity, error)
}

// IdentityResolver maps any token, valid or not, onto an identity.
type IdentityResolver interface {
	Resolve(token string) auth.Identity
}

// AuthMiddleware requires a valid bearer token in the Authorization header.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token, ok := bearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		identity, err := validator.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(identityContextKey, identity)
		c.Next()
	}
}

// WebSocketIdentity resolves the caller from the ?token= query parameter, falling
// back to the Authorization header. It never aborts: a missing or bad token
// yields the anonymous identity and the session decides what that means.
func WebSocketIdentity(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token, _ = bearerToken(c.GetHeader("Authorization"))
		}

		c.Set(identityContextKey, resolver.Resolve(token))
		c.Next()
	}
}

// IdentityFrom returns the identity stored by one of the auth middlewares.
func IdentityFrom(c *gin.Context) auth.Identity {
	if val, ok := c.Get(identityContextKey); ok {
		if identity, ok := val.(auth.Identity); ok {
			return identity
		}
	}
	return auth.Anonymous
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
