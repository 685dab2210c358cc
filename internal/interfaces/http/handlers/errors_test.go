package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/your-org/asset-inventory/internal/config"
	"github.com/your-org/asset-inventory/internal/pkg/apperror"
)

func TestRespondErrorStatuses(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", apperror.NotFound("request %d not found", 1), http.StatusNotFound},
		{"invalid argument", apperror.InvalidArgument("bad"), http.StatusBadRequest},
		{"invalid state", apperror.InvalidState("closed"), http.StatusConflict},
		{"conflict", apperror.ConcurrencyConflict(nil, "raced"), http.StatusConflict},
		{"insufficient", apperror.InsufficientStock("Cable", "X", decimal.NewFromInt(5), decimal.NewFromInt(2)), http.StatusUnprocessableEntity},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, tc.err)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRetryOnConflict(t *testing.T) {
	cfg := &config.Config{Inventory: config.InventoryConfig{ConflictRetries: 3, ConflictRetryBase: time.Millisecond}}

	calls := 0
	err := retryOnConflict(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return apperror.ConcurrencyConflict(nil, "raced")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryOnConflict(context.Background(), cfg, func(context.Context) error {
		calls++
		return apperror.InvalidState("closed")
	})
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
	assert.Equal(t, 1, calls)

	calls = 0
	err = retryOnConflict(context.Background(), cfg, func(context.Context) error {
		calls++
		return apperror.ConcurrencyConflict(nil, "raced")
	})
	assert.True(t, apperror.IsConflict(err))
	assert.Equal(t, 4, calls)
}
