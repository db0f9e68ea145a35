package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRoles lets the request through only when the session's user_type is one of allowed.
func RequireRoles(allowed ...string) gin.HandlerFunc {
	allowedSet := map[string]struct{}{}
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}
	return func(c *gin.Context) {
		v, exists := c.Get(CtxUserType)
		if !exists {
			abort(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		role, _ := v.(string)
		if _, ok := allowedSet[role]; !ok {
			abort(c, http.StatusForbidden, "Forbidden")
			return
		}
		c.Next()
	}
}
