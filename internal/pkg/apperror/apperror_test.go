package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("failed to approve request: %w", InvalidState("request 7 is %s", "COMPLETED"))

	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindInvalidState, KindOf(err))
	assert.Contains(t, err.Error(), "request 7 is COMPLETED")
}

func TestInsufficientStock(t *testing.T) {
	err := InsufficientStock("Fiber Cable", "Fujikura", decimal.NewFromInt(70), decimal.NewFromInt(50))

	assert.True(t, err.Shortfall.Equal(decimal.NewFromInt(20)))
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.Equal(t, KindInsufficientStock, KindOf(fmt.Errorf("wrapped: %w", err)))
	assert.Contains(t, err.Error(), "short by 20")
}

func TestInsufficientStockNeverNegative(t *testing.T) {
	err := InsufficientStock("ONT", "Huawei", decimal.NewFromInt(1), decimal.NewFromInt(5))
	assert.True(t, err.Shortfall.IsZero())
}

func TestConflict(t *testing.T) {
	cause := errors.New("could not serialize access")
	err := ConcurrencyConflict(cause, "lot %s changed concurrently", "AST-2026-0001")

	assert.True(t, IsConflict(err))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, IsConflict(cause))
	assert.Equal(t, KindInternal, KindOf(cause))
	assert.Equal(t, Kind(""), KindOf(nil))
}
