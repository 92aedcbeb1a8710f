package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatwire/chatwire/internal/config"
	"github.com/chatwire/chatwire/internal/protocol"
)

// Auth validates the x-api-key and x-api-secret headers against the
// configured credentials. With no credentials configured the middleware
// passes everything through (development mode).
func Auth(cfg config.AuthConfig) gin.HandlerFunc {
	enabled := cfg.APIKey != "" || cfg.APISecret != ""

	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		key := c.GetHeader("x-api-key")
		secret := c.GetHeader("x-api-secret")
		keyOK := subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) == 1
		secretOK := subtle.ConstantTimeCompare([]byte(secret), []byte(cfg.APISecret)) == 1
		if !keyOK || !secretOK {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid API credentials",
				"code":  protocol.CodeAuthFailed,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
