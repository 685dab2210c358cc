// internal/domain/asset/repository.go
package asset

import (
	"context"

	"github.com/shopspring/decimal"
)

// StockFilter narrows ledger queries. Empty fields match everything.
type StockFilter struct {
	Name  string
	Brand string
}

// Repository is the persistence contract of the stock ledger. Every method
// runs inside the transaction bound to ctx when there is one. Lot queries
// never return soft-deleted rows.
type Repository interface {
	// FindLotsByNameBrand returns IN_STORAGE lots matching name and brand
	// case-insensitively, ordered by id. forUpdate locks the rows.
	FindLotsByNameBrand(ctx context.Context, name, brand string, forUpdate bool) ([]Asset, error)
	// ListStockLots returns IN_STORAGE lots matching the filter
	ListStockLots(ctx context.Context, filter StockFilter) ([]Asset, error)
	FindLot(ctx context.Context, id string) (*Asset, error)
	// UpdateLotBalance sets the balance only if it still equals previous.
	// A mismatch is reported as a concurrency conflict.
	UpdateLotBalance(ctx context.Context, id string, previous, next decimal.Decimal) error
	InsertMovement(ctx context.Context, movement *StockMovement) error
	ListMovements(ctx context.Context, assetID string) ([]StockMovement, error)
	// NextAssetNumber reserves the next id sequence number for year
	NextAssetNumber(ctx context.Context, year int) (int, error)
	CreateAssets(ctx context.Context, assets []Asset) error
}
