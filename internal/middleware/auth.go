package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"medicare/internal/services"
)

// Context keys set by AuthMiddleware.
const (
	CtxAccountID = "account_id"
	CtxEmail     = "email"
	CtxUserType  = "user_type"
)

// AuthMiddleware requires a bearer session token. A missing or malformed header is 401, a token
// that fails verification is 403.
func AuthMiddleware(tokens services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		// preflight
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			abort(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		claims, err := tokens.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			abort(c, http.StatusForbidden, "Invalid or expired token")
			return
		}

		c.Set(CtxAccountID, claims.AccountID)
		c.Set(CtxEmail, claims.Email)
		c.Set(CtxUserType, claims.UserType)
		c.Next()
	}
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}
