package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const terminalKey = "terminal"

// TerminalAuth enforces bearer access tokens. When required is false a
// missing header passes through anonymously, but a present and invalid
// token is still rejected.
func TerminalAuth(iss *Issuer, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "missing bearer token"})
				return
			}
			c.Next()
			return
		}
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := iss.Parse(tokenStr, TypeAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "invalid token"})
			return
		}
		c.Set(terminalKey, claims.Subject)
		c.Next()
	}
}

// TerminalFromContext returns the authenticated terminal id, or "" for
// anonymous requests.
func TerminalFromContext(c *gin.Context) string {
	return c.GetString(terminalKey)
}
