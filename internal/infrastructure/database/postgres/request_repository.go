// internal/infrastructure/database/postgres/request_repository.go
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/your-org/asset-inventory/internal/domain/request"
	"github.com/your-org/asset-inventory/internal/pkg/apperror"
	"github.com/your-org/asset-inventory/internal/pkg/txn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestRepository implements request.Repository with gorm
type RequestRepository struct {
	db *gorm.DB
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// CreateRequestWithItems inserts the request and its items
func (r *RequestRepository) CreateRequestWithItems(ctx context.Context, req *request.Request) error {
	if err := txn.DB(ctx, r.db).Create(req).Error; err != nil {
		return translate(err, "create request")
	}
	return nil
}

// FindRequestByID loads a request with items and registration counters
func (r *RequestRepository) FindRequestByID(ctx context.Context, id uint, forUpdate bool) (*request.Request, error) {
	db := txn.DB(ctx, r.db)

	// Lock the header alone so preload queries stay plain reads
	if forUpdate {
		var locked request.Request
		if err := lockForUpdate(db).Select("id").Where("id = ?", id).First(&locked).Error; err != nil {
			return nil, r.notFound(err, id)
		}
	}

	var req request.Request
	if err := db.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Preload("Registrations").
		Where("id = ?", id).
		First(&req).Error; err != nil {
		return nil, r.notFound(err, id)
	}

	req.SyncRegistrationCounts()
	return &req, nil
}

func (r *RequestRepository) notFound(err error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("request %d not found", id)
	}
	return translate(err, "retrieve request")
}

// UpdateRequestItem persists the approval outcome of an item
func (r *RequestRepository) UpdateRequestItem(ctx context.Context, item *request.RequestItem) error {
	result := txn.DB(ctx, r.db).
		Model(&request.RequestItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"status":            item.Status,
			"approved_quantity": item.ApprovedQuantity,
			"reason":            item.Reason,
		})
	if result.Error != nil {
		return translate(result.Error, "update request item")
	}
	if result.RowsAffected == 0 {
		return apperror.NotFound("request item %d not found", item.ID)
	}
	return nil
}

// UpdateRequestStatus persists the header status and lifecycle stamps
func (r *RequestRepository) UpdateRequestStatus(ctx context.Context, req *request.Request) error {
	result := txn.DB(ctx, r.db).
		Model(&request.Request{}).
		Where("id = ?", req.ID).
		Updates(map[string]interface{}{
			"status":               req.Status,
			"logistic_approved_by": req.LogisticApprovedBy,
			"logistic_approved_at": req.LogisticApprovedAt,
			"purchase_approved_by": req.PurchaseApprovedBy,
			"purchase_approved_at": req.PurchaseApprovedAt,
			"rejected_by":          req.RejectedBy,
			"rejection_reason":     req.RejectionReason,
			"rejected_at":          req.RejectedAt,
			"arrived_by":           req.ArrivedBy,
			"arrived_at":           req.ArrivedAt,
			"completed_by":         req.CompletedBy,
			"completed_at":         req.CompletedAt,
			"is_registered":        req.IsRegistered,
		})
	if result.Error != nil {
		return translate(result.Error, "update request status")
	}
	if result.RowsAffected == 0 {
		return apperror.NotFound("request %d not found", req.ID)
	}
	return nil
}

// IncrementRegistration upserts the counter row of a request item
func (r *RequestRepository) IncrementRegistration(ctx context.Context, requestID, itemID uint, delta int) error {
	row := &request.ItemRegistration{
		RequestID:       requestID,
		RequestItemID:   itemID,
		RegisteredCount: delta,
	}
	err := txn.DB(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "request_id"}, {Name: "request_item_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"registered_count": gorm.Expr("request_item_registrations.registered_count + ?", delta),
			"updated_at":       time.Now().UTC(),
		}),
	}).Create(row).Error
	if err != nil {
		return translate(err, "update registration counter")
	}
	return nil
}

// NextDocumentNumber reserves the next document sequence of the day
func (r *RequestRepository) NextDocumentNumber(ctx context.Context, day time.Time) (int, error) {
	return nextSequenceValue(ctx, r.db, "request:"+day.Format("20060102"), nil)
}

// DeleteRequest soft-deletes the request and removes its children
func (r *RequestRepository) DeleteRequest(ctx context.Context, id uint) error {
	db := txn.DB(ctx, r.db)

	if err := db.Where("request_id = ?", id).Delete(&request.ItemRegistration{}).Error; err != nil {
		return translate(err, "delete registration counters")
	}
	if err := db.Where("request_id = ?", id).Delete(&request.RequestItem{}).Error; err != nil {
		return translate(err, "delete request items")
	}

	result := db.Delete(&request.Request{}, id)
	if result.Error != nil {
		return translate(result.Error, "delete request")
	}
	if result.RowsAffected == 0 {
		return apperror.NotFound("request %d not found", id)
	}
	return nil
}
