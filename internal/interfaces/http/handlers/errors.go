// internal/interfaces/http/handlers/errors.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sethvargo/go-retry"
	"github.com/your-org/asset-inventory/internal/config"
	"github.com/your-org/asset-inventory/internal/domain/request"
	"github.com/your-org/asset-inventory/internal/interfaces/http/middleware"
	"github.com/your-org/asset-inventory/internal/pkg/apperror"
)

// respondError maps domain errors onto HTTP statuses
func respondError(c *gin.Context, err error) {
	var insufficient *apperror.InsufficientStockError
	if errors.As(err, &insufficient) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": insufficient.Error(),
			"details": gin.H{
				"item_name": insufficient.ItemName,
				"brand":     insufficient.Brand,
				"requested": insufficient.Requested,
				"available": insufficient.Available,
				"shortfall": insufficient.Shortfall,
			},
		})
		return
	}

	switch apperror.KindOf(err) {
	case apperror.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperror.KindInvalidArgument:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperror.KindInvalidState:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case apperror.KindConcurrencyConflict:
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retryable": true})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request data",
		"details": err.Error(),
	})
}

// retryOnConflict reruns fn with exponential backoff while it reports a
// concurrency conflict. Every attempt is a fresh transaction.
func retryOnConflict(ctx context.Context, cfg *config.Config, fn func(ctx context.Context) error) error {
	base := cfg.Inventory.ConflictRetryBase
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	backoff := retry.WithMaxRetries(cfg.Inventory.ConflictRetries, retry.NewExponential(base))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if apperror.IsConflict(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request ID",
		})
		return 0, false
	}
	return uint(id), true
}

func actorFrom(c *gin.Context) request.Actor {
	id, _ := middleware.GetUserIDFromContext(c)
	return request.Actor{
		ID:   id,
		Name: middleware.GetUserNameFromContext(c),
		Role: middleware.GetUserRoleFromContext(c),
	}
}
