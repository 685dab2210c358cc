// internal/domain/asset/consumer.go
package asset

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/asset-inventory/internal/domain/activity"
	"github.com/your-org/asset-inventory/internal/pkg/apperror"
	"github.com/your-org/asset-inventory/internal/pkg/metrics"
)

// ConsumeItem is one material line drawn from storage
type ConsumeItem struct {
	Name     string          `json:"name" binding:"required"`
	Brand    string          `json:"brand" binding:"required"`
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
	Unit     string          `json:"unit"`
}

// ConsumeContext describes what caused the consumption
type ConsumeContext struct {
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	PerformedBy   string `json:"-"`
	Notes         string `json:"notes"`
}

// LotConsumption records what was taken from one lot
type LotConsumption struct {
	AssetID         string          `json:"asset_id"`
	Name            string          `json:"name"`
	Brand           string          `json:"brand"`
	Taken           decimal.Decimal `json:"taken"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	Unit            string          `json:"unit"`
}

// ConsumeResult is returned when every item was satisfied
type ConsumeResult struct {
	Success        bool             `json:"success"`
	ReferenceID    string           `json:"reference_id"`
	ConsumedPerLot []LotConsumption `json:"consumed_per_lot"`
}

// consumptionOrder sorts measured lots largest balance first, lot id
// ascending on ties.
func consumptionOrder(lots []Asset) []Asset {
	candidates := make([]Asset, 0, len(lots))
	for _, lot := range lots {
		// Counted and unit lots are never drawn down here
		if !lot.CountsAsStock() || !lot.IsMeasured() || !lot.CurrentBalance.IsPositive() {
			continue
		}
		candidates = append(candidates, lot)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		bi, bj := *candidates[i].CurrentBalance, *candidates[j].CurrentBalance
		if !bi.Equal(bj) {
			return bi.GreaterThan(bj)
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates
}

func validateConsumeItems(items []ConsumeItem) error {
	if len(items) == 0 {
		return apperror.InvalidArgument("at least one item is required")
	}
	for _, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			return apperror.InvalidArgument("item name is required")
		}
		if strings.TrimSpace(item.Brand) == "" {
			return apperror.InvalidArgument("brand of %s is required", item.Name)
		}
		if !item.Quantity.IsPositive() {
			return apperror.InvalidArgument("quantity for %s must be greater than zero", item.Name)
		}
	}
	return nil
}

// Consume draws every item from storage, largest lot first, in a single
// transaction. Either all items are satisfied or nothing is written.
func (s *Service) Consume(ctx context.Context, items []ConsumeItem, cc ConsumeContext) (*ConsumeResult, error) {
	if err := validateConsumeItems(items); err != nil {
		metrics.ConsumeFailures.WithLabelValues(string(apperror.KindOf(err))).Inc()
		return nil, err
	}
	if cc.ReferenceID == "" {
		cc.ReferenceID = uuid.NewString()
	}
	if cc.ReferenceType == "" {
		cc.ReferenceType = ReferenceInstallation
	}

	var consumed []LotConsumption
	lotsPerItem := make([]int, len(items))

	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		consumed = consumed[:0]
		for idx, item := range items {
			lots, err := s.repo.FindLotsByNameBrand(ctx, item.Name, item.Brand, true)
			if err != nil {
				return err
			}

			remaining := item.Quantity
			consumable := decimal.Zero
			candidates := consumptionOrder(lots)
			for _, lot := range candidates {
				consumable = consumable.Add(*lot.CurrentBalance)
			}
			if consumable.LessThan(remaining) {
				return apperror.InsufficientStock(item.Name, item.Brand, item.Quantity, consumable)
			}

			lotsPerItem[idx] = 0
			for _, lot := range candidates {
				if !remaining.IsPositive() {
					break
				}

				previous := *lot.CurrentBalance
				take := decimal.Min(previous, remaining)
				next := previous.Sub(take)

				if err := s.repo.UpdateLotBalance(ctx, lot.ID, previous, next); err != nil {
					return err
				}

				unit := item.Unit
				if unit == "" {
					unit = lot.Unit
				}
				if err := s.repo.InsertMovement(ctx, &StockMovement{
					AssetID:         lot.ID,
					MovementType:    MovementConsumed,
					Quantity:        take.Neg(),
					Unit:            unit,
					PreviousBalance: &previous,
					NewBalance:      &next,
					ReferenceType:   cc.ReferenceType,
					ReferenceID:     cc.ReferenceID,
					PerformedBy:     cc.PerformedBy,
					Notes:           cc.Notes,
				}); err != nil {
					return err
				}

				consumed = append(consumed, LotConsumption{
					AssetID:         lot.ID,
					Name:            lot.Name,
					Brand:           lot.Brand,
					Taken:           take,
					PreviousBalance: previous,
					NewBalance:      next,
					Unit:            unit,
				})
				remaining = remaining.Sub(take)
				lotsPerItem[idx]++
			}
		}

		return s.activity.Record(ctx, activity.Entry{
			EntityType: activity.EntityStockBatch,
			EntityID:   cc.ReferenceID,
			Action:     activity.ActionConsume,
			Actor:      cc.PerformedBy,
			Changes: map[string]interface{}{
				"reference_type": cc.ReferenceType,
				"items":          items,
				"lots":           consumed,
			},
		})
	})
	if err != nil {
		metrics.ConsumeFailures.WithLabelValues(string(apperror.KindOf(err))).Inc()
		s.logger.WithFields(logrus.Fields{
			"reference_id": cc.ReferenceID,
			"items":        len(items),
		}).WithError(err).Warn("Stock consumption failed")
		return nil, err
	}

	for idx, item := range items {
		metrics.StockConsumed.WithLabelValues(item.Name, item.Brand).Add(item.Quantity.InexactFloat64())
		metrics.LotsTouched.Observe(float64(lotsPerItem[idx]))
	}

	s.logger.WithFields(logrus.Fields{
		"reference_id": cc.ReferenceID,
		"lots":         len(consumed),
	}).Info("Stock consumed")

	return &ConsumeResult{
		Success:        true,
		ReferenceID:    cc.ReferenceID,
		ConsumedPerLot: consumed,
	}, nil
}
