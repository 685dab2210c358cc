// internal/domain/activity/service.go
package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/your-org/asset-inventory/internal/pkg/txn"
	"gorm.io/gorm"
)

// Recorder appends activity entries. Implementations write inside the
// caller's transaction when one is bound to ctx.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

type correlationKey struct{}

// WithCorrelationID tags every entry recorded under ctx
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id stored by WithCorrelationID
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// Service handles activity log persistence
type Service struct {
	db *gorm.DB
}

// NewService creates a new activity service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Record appends an entry to the activity log
func (s *Service) Record(ctx context.Context, entry Entry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("failed to encode activity changes: %w", err)
	}

	correlationID := CorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	log := &Log{
		EntityType:    entry.EntityType,
		EntityID:      entry.EntityID,
		Action:        entry.Action,
		Actor:         entry.Actor,
		Changes:       changes,
		CorrelationID: correlationID,
	}

	if err := txn.DB(ctx, s.db).Create(log).Error; err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// ListForEntity returns the entity history, newest first
func (s *Service) ListForEntity(ctx context.Context, entityType, entityID string) ([]Log, error) {
	var logs []Log
	if err := txn.DB(ctx, s.db).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC, id DESC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve activity: %w", err)
	}
	return logs, nil
}
