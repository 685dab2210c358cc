// internal/domain/asset/availability.go
package asset

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/your-org/asset-inventory/internal/pkg/apperror"
)

// Availability is the outcome of evaluating a requested quantity
type Availability struct {
	Name         string          `json:"name"`
	Brand        string          `json:"brand"`
	Requested    decimal.Decimal `json:"requested"`
	Available    decimal.Decimal `json:"available"`
	Deficit      decimal.Decimal `json:"deficit"`
	IsSufficient bool            `json:"is_sufficient"`
	IsFragmented bool            `json:"is_fragmented"`
	LotIDs       []string        `json:"lot_ids"`
}

// Evaluate decides whether stock in storage covers the requested quantity.
// Fragmentation reflects how many lots hold the item, not how many would
// be drained.
func (s *Service) Evaluate(ctx context.Context, name, brand string, requested decimal.Decimal) (*Availability, error) {
	if !requested.IsPositive() {
		return nil, apperror.InvalidArgument("requested quantity for %s must be greater than zero", name)
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperror.InvalidArgument("item name is required")
	}
	if strings.TrimSpace(brand) == "" {
		return nil, apperror.InvalidArgument("brand of %s is required", name)
	}

	lots, err := s.repo.FindLotsByNameBrand(ctx, name, brand, false)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve lots: %w", err)
	}

	result := &Availability{
		Name:      name,
		Brand:     brand,
		Requested: requested,
		Available: decimal.Zero,
		LotIDs:    make([]string, 0, len(lots)),
	}
	for i := range lots {
		if !lots[i].CountsAsStock() {
			continue
		}
		result.Available = result.Available.Add(lots[i].AvailableAmount())
		result.LotIDs = append(result.LotIDs, lots[i].ID)
	}

	result.IsSufficient = result.Available.GreaterThanOrEqual(requested)
	result.IsFragmented = len(result.LotIDs) > 1
	result.Deficit = decimal.Max(decimal.Zero, requested.Sub(result.Available))

	return result, nil
}
