package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/letstalk/pkg/auth"
)

const (
	IdentityKey = "identity"
	TokenKey    = "token"
)

// RequireIdentity rejects requests without a token the gate accepts. The
// resolved identity and the raw token are stored on the context.
func RequireIdentity(gate auth.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractToken(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthenticated.Error()})
			return
		}

		identity, err := gate.Authorize(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthenticated.Error()})
			return
		}

		c.Set(IdentityKey, identity)
		c.Set(TokenKey, token)
		c.Next()
	}
}

// Identity returns the identity stored by RequireIdentity.
func Identity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := v.(auth.Identity)
	return identity, ok
}
