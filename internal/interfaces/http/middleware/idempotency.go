// internal/interfaces/http/middleware/idempotency.go
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// IdempotencyHeader carries the client chosen key
const IdempotencyHeader = "Idempotency-Key"

// KeyStore reserves idempotency keys. The Redis client implements it.
type KeyStore interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Idempotency rejects a repeated Idempotency-Key with 409 while the first
// call is remembered. Keys of failed calls are released so the client can
// try again. Requests without the header pass untouched.
func Idempotency(store KeyStore, ttl time.Duration, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.GetHeader(IdempotencyHeader)
		if clientKey == "" || store == nil {
			c.Next()
			return
		}
		if len(clientKey) > 128 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Idempotency-Key too long",
			})
			c.Abort()
			return
		}

		userID, _ := GetUserIDFromContext(c)
		key := fmt.Sprintf("idempotency:%s:%s:%s", userID, c.Request.URL.Path, clientKey)

		reserved, err := store.Reserve(c.Request.Context(), key, ttl)
		if err != nil {
			logger.WithError(err).Warn("Idempotency store unavailable")
			c.Next()
			return
		}
		if !reserved {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Request with this Idempotency-Key was already submitted",
			})
			c.Abort()
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			// The request context may already be cancelled here
			if err := store.Release(context.Background(), key); err != nil {
				logger.WithError(err).WithField("key", key).Warn("Failed to release idempotency key")
			}
		}
	}
}
