package middleware

import (
	"net/http"
	"strings"

	"quickquiz/services"

	"github.com/gin-gonic/gin"
)

// TokenParser turns a bearer token into the caller's identity.
type TokenParser interface {
	ParseToken(token string) (services.Identity, error)
}

// AuthMiddleware requires a valid token and stores the caller's id under
// "user_id". Browsers cannot set headers on a websocket handshake, so the
// token may also arrive as the "token" query parameter.
func AuthMiddleware(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		id, err := parser.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set("user_id", id.UserID)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	const bearerPrefix = "Bearer "

	header := c.GetHeader("Authorization")
	if header == "" {
		return c.Query("token")
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
}
