package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crmdesk/internal/pkg"
)

// APIKeyHeader carries the CRM API key.
const APIKeyHeader = "X-Api-Key"

// APIKey rejects requests whose X-Api-Key header does not equal key with a
// 401 envelope. An empty key disables the check.
func APIKey(key string) gin.HandlerFunc {
	want := []byte(key)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		got := []byte(c.GetHeader(APIKeyHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			c.Header("X-Status-Reason", "invalid api key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, pkg.Response{
				Code:    http.StatusUnauthorized,
				Message: "invalid api key",
			})
			return
		}
		c.Next()
	}
}
