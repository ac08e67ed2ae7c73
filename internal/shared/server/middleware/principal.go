package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const principalIDKey = "principalId"

// Principal reads the caller identity forwarded by the upstream gateway.
// Authentication itself happens before requests reach this service; an
// empty header is treated as an anonymous caller rather than rejected.
func Principal() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-User-Id"))
		if id == "" {
			id = "anonymous"
		}
		c.Set(principalIDKey, id)
		c.Next()
	}
}

// PrincipalIDFromContext fetches the principal stored by Principal middleware.
func PrincipalIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(principalIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
