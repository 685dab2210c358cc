// internal/infrastructure/database/postgres/sequence.go
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/your-org/asset-inventory/internal/pkg/txn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sequence is a named counter. Rows are locked while incremented so two
// transactions never hand out the same value.
type Sequence struct {
	Name      string `gorm:"primaryKey;size:64"`
	Value     int    `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// TableName overrides the table name
func (Sequence) TableName() string { return "id_sequences" }

// nextSequenceValue increments the named sequence inside the caller's
// transaction. seed supplies the starting value when the row is missing.
func nextSequenceValue(ctx context.Context, db *gorm.DB, name string, seed func(tx *gorm.DB) (int, error)) (int, error) {
	var next int
	err := NewTransactor(db).RunInTransaction(ctx, func(ctx context.Context) error {
		tx := txn.DB(ctx, db)

		var seq Sequence
		err := lockForUpdate(tx).Where("name = ?", name).First(&seq).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			start := 0
			if seed != nil {
				if start, err = seed(tx); err != nil {
					return err
				}
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&Sequence{Name: name, Value: start}).Error; err != nil {
				return err
			}
			err = lockForUpdate(tx).Where("name = ?", name).First(&seq).Error
		}
		if err != nil {
			return err
		}

		seq.Value++
		if err := tx.Model(&Sequence{}).Where("name = ?", name).
			Updates(map[string]interface{}{"value": seq.Value, "updated_at": time.Now().UTC()}).Error; err != nil {
			return err
		}
		next = seq.Value
		return nil
	})
	if err != nil {
		return 0, translate(err, "allocate "+name)
	}
	return next, nil
}
