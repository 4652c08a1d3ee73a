package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"courtboard/internal/identity"
)

// ClaimsKey is the gin context key holding verified Claims.
const ClaimsKey = "claims"

// UserAuth enforces bearer JWT tokens signed with HS256 and puts the user
// on the request context for identity.UserID.
func UserAuth(signingKey, issuer string) gin.HandlerFunc {
	return bearer(signingKey, issuer, true)
}

// OptionalUserAuth is UserAuth that lets anonymous requests through. A
// token that is present but invalid is still rejected.
func OptionalUserAuth(signingKey, issuer string) gin.HandlerFunc {
	return bearer(signingKey, issuer, false)
}

func bearer(signingKey, issuer string, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
				return
			}
			c.Next()
			return
		}
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Request = c.Request.WithContext(identity.WithUser(c.Request.Context(), claims.User()))
		c.Next()
	}
}
