package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"parkspot-backend/internal/apperr"
	"parkspot-backend/internal/auth"
)

const identityKey = "identity"

// TokenVerifier turns a bearer token into a verified identity.
type TokenVerifier interface {
	FromBearer(token string) (auth.Identity, error)
}

// Identity verifies the bearer token, if any, and stores the caller's
// identity on the gin context and the request context. Browsers cannot set
// headers on a websocket handshake, so an access_token query parameter is
// accepted as well. A token that fails verification is rejected; a missing
// one is not.
func Identity(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			c.Next()
			return
		}

		id, err := verifier.FromBearer(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "invalid access token",
				"code":      apperr.ErrUnauthorized.Code,
				"retryable": false,
			})
			return
		}
		c.Set(identityKey, id)
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RequireIdentity aborts with 401 unless Identity found a caller.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentIdentity(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     apperr.ErrUnauthorized.Message,
				"code":      apperr.ErrUnauthorized.Code,
				"retryable": false,
			})
			return
		}
		c.Next()
	}
}

// CurrentIdentity returns the identity stored by Identity.
func CurrentIdentity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

func bearer(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("access_token")
}
