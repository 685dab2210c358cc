// internal/infrastructure/database/postgres/asset_repository.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/your-org/asset-inventory/internal/domain/asset"
	"github.com/your-org/asset-inventory/internal/pkg/apperror"
	"github.com/your-org/asset-inventory/internal/pkg/txn"
	"gorm.io/gorm"
)

// AssetRepository implements asset.Repository with gorm
type AssetRepository struct {
	db *gorm.DB
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db *gorm.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// inStorage keeps lots that count as stock. Soft-deleted rows are already
// excluded by gorm's DeletedAt scope.
func inStorage(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", asset.StatusInStorage)
}

// sameClass matches one item class exactly, ignoring case and surrounding
// blanks. A blank brand matches only lots with a blank brand.
func sameClass(name, brand string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("LOWER(name) = LOWER(?) AND LOWER(brand) = LOWER(?)",
			strings.TrimSpace(name), strings.TrimSpace(brand))
	}
}

// filterNameBrand narrows listings; blank fields are not filtered
func filterNameBrand(name, brand string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if name = strings.TrimSpace(name); name != "" {
			db = db.Where("LOWER(name) = LOWER(?)", name)
		}
		if brand = strings.TrimSpace(brand); brand != "" {
			db = db.Where("LOWER(brand) = LOWER(?)", brand)
		}
		return db
	}
}

// FindLotsByNameBrand returns matching lots in storage
func (r *AssetRepository) FindLotsByNameBrand(ctx context.Context, name, brand string, forUpdate bool) ([]asset.Asset, error) {
	query := txn.DB(ctx, r.db)
	if forUpdate {
		query = lockForUpdate(query)
	}

	var lots []asset.Asset
	if err := query.
		Scopes(inStorage, sameClass(name, brand)).
		Order("id ASC").
		Find(&lots).Error; err != nil {
		return nil, translate(err, "retrieve lots")
	}
	return lots, nil
}

// ListStockLots returns lots in storage matching the filter
func (r *AssetRepository) ListStockLots(ctx context.Context, filter asset.StockFilter) ([]asset.Asset, error) {
	var lots []asset.Asset
	if err := txn.DB(ctx, r.db).
		Scopes(inStorage, filterNameBrand(filter.Name, filter.Brand)).
		Order("name ASC, brand ASC, id ASC").
		Find(&lots).Error; err != nil {
		return nil, translate(err, "retrieve lots")
	}
	return lots, nil
}

// FindLot returns a lot by id
func (r *AssetRepository) FindLot(ctx context.Context, id string) (*asset.Asset, error) {
	var lot asset.Asset
	if err := txn.DB(ctx, r.db).Where("id = ?", id).First(&lot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("lot %s not found", id)
		}
		return nil, translate(err, "retrieve lot")
	}
	return &lot, nil
}

// UpdateLotBalance sets the new balance if nobody changed it in between
func (r *AssetRepository) UpdateLotBalance(ctx context.Context, id string, previous, next decimal.Decimal) error {
	result := txn.DB(ctx, r.db).
		Model(&asset.Asset{}).
		Where("id = ? AND current_balance = ?", id, previous).
		Update("current_balance", next)
	if result.Error != nil {
		return translate(result.Error, "update lot balance")
	}
	if result.RowsAffected == 0 {
		return apperror.ConcurrencyConflict(nil, "balance of lot %s changed concurrently", id)
	}
	return nil
}

// InsertMovement appends a movement to the ledger
func (r *AssetRepository) InsertMovement(ctx context.Context, movement *asset.StockMovement) error {
	if err := txn.DB(ctx, r.db).Create(movement).Error; err != nil {
		return translate(err, "record stock movement")
	}
	return nil
}

// ListMovements returns the movements of a lot, oldest first
func (r *AssetRepository) ListMovements(ctx context.Context, assetID string) ([]asset.StockMovement, error) {
	var movements []asset.StockMovement
	if err := txn.DB(ctx, r.db).
		Where("asset_id = ?", assetID).
		Order("created_at ASC, id ASC").
		Find(&movements).Error; err != nil {
		return nil, translate(err, "retrieve movements")
	}
	return movements, nil
}

// NextAssetNumber reserves the next number of the year. The sequence row
// starts from the highest existing id of that year, deleted lots included.
func (r *AssetRepository) NextAssetNumber(ctx context.Context, year int) (int, error) {
	prefix := asset.AssetIDPrefix(year)
	return nextSequenceValue(ctx, r.db, fmt.Sprintf("asset:%d", year), func(tx *gorm.DB) (int, error) {
		var ids []string
		if err := tx.Unscoped().
			Model(&asset.Asset{}).
			Where("id LIKE ?", prefix+"%").
			Order("LENGTH(id) DESC, id DESC").
			Limit(1).
			Pluck("id", &ids).Error; err != nil {
			return 0, err
		}
		if len(ids) == 0 {
			return 0, nil
		}
		n, err := strconv.Atoi(strings.TrimPrefix(ids[0], prefix))
		if err != nil {
			return 0, fmt.Errorf("malformed asset id %q: %w", ids[0], err)
		}
		return n, nil
	})
}

// CreateAssets inserts lots in one statement
func (r *AssetRepository) CreateAssets(ctx context.Context, assets []asset.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	if err := txn.DB(ctx, r.db).Create(&assets).Error; err != nil {
		return translate(err, "create assets")
	}
	return nil
}
