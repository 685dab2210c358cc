// internal/domain/request/registration.go
package request

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/asset-inventory/internal/domain/activity"
	"github.com/your-org/asset-inventory/internal/domain/asset"
	"github.com/your-org/asset-inventory/internal/pkg/apperror"
	"github.com/your-org/asset-inventory/internal/pkg/metrics"
)

// RegistrationResult reports the assets created by one registration call
type RegistrationResult struct {
	CreatedAssets     []asset.Asset      `json:"created_assets"`
	IsFullyRegistered bool               `json:"is_fully_registered"`
	TotalApproved     int                `json:"total_approved"`
	TotalRegistered   int                `json:"total_registered"`
	Registered        RegistrationCounts `json:"partially_registered_items"`
	Status            Status             `json:"status"`
}

// RegisterAssets turns arrived request items into assets. Counters
// accumulate across calls until the approved total is reached, at which
// point the request waits for handover. Replaying the same specs creates
// the assets again and counts them again.
func (s *Service) RegisterAssets(ctx context.Context, id uint, specs []asset.NewLot, actor Actor) (*RegistrationResult, error) {
	if len(specs) == 0 {
		return nil, apperror.InvalidArgument("at least one asset is required")
	}

	var (
		result *RegistrationResult
		from   Status
		r      *Request
	)
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.repo.FindRequestByID(ctx, id, true)
		if err != nil {
			return err
		}
		if !r.CanRegisterAssets() {
			return apperror.InvalidState("assets cannot be registered for request %s in status %s", r.DocNumber, r.Status)
		}
		from = r.Status

		for _, lot := range specs {
			if lot.RequestItemID == nil {
				continue
			}
			if _, ok := r.FindItem(*lot.RequestItemID); !ok {
				return apperror.InvalidArgument("item %d does not belong to request %s", *lot.RequestItemID, r.DocNumber)
			}
		}

		created, err := s.stock.ReceiveLots(ctx, specs, asset.ReceiveContext{
			RequestID:    &r.ID,
			ReferenceID:  r.DocNumber,
			RegisteredBy: actor.Name,
		})
		if err != nil {
			return err
		}

		increments := make(RegistrationCounts)
		for _, a := range created {
			if a.RequestItemID == nil {
				continue
			}
			increments[*a.RequestItemID]++
		}

		if r.PartiallyRegisteredItems == nil {
			r.PartiallyRegisteredItems = make(RegistrationCounts)
		}
		for itemID, delta := range increments {
			if err := s.repo.IncrementRegistration(ctx, r.ID, itemID, delta); err != nil {
				return err
			}
			r.PartiallyRegisteredItems[itemID] += delta
		}

		totalApproved := r.TotalApproved()
		totalRegistered := r.PartiallyRegisteredItems.Total()
		fully := totalRegistered >= totalApproved

		if fully {
			r.Status = StatusAwaitingHandover
			r.IsRegistered = true
			if err := s.repo.UpdateRequestStatus(ctx, r); err != nil {
				return err
			}
		}

		ids := make([]string, 0, len(created))
		for _, a := range created {
			ids = append(ids, a.ID)
		}
		if err := s.activity.Record(ctx, activity.Entry{
			EntityType: activity.EntityRequest,
			EntityID:   fmt.Sprint(r.ID),
			Action:     activity.ActionRegister,
			Actor:      actor.Name,
			Changes: map[string]interface{}{
				"created":             len(created),
				"asset_ids":           ids,
				"is_fully_registered": fully,
				"total_registered":    totalRegistered,
				"total_approved":      totalApproved,
			},
		}); err != nil {
			return err
		}

		result = &RegistrationResult{
			CreatedAssets:     created,
			IsFullyRegistered: fully,
			TotalApproved:     totalApproved,
			TotalRegistered:   totalRegistered,
			Registered:        r.PartiallyRegisteredItems,
			Status:            r.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AssetsRegistered.Add(float64(len(result.CreatedAssets)))
	s.logger.WithFields(logrus.Fields{
		"request_id":          r.ID,
		"created":             len(result.CreatedAssets),
		"is_fully_registered": result.IsFullyRegistered,
	}).Info("Assets registered")

	if from != r.Status {
		s.afterTransition(ctx, r, from)
	}

	return result, nil
}
