// internal/domain/asset/ledger.go
package asset

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/your-org/asset-inventory/internal/pkg/apperror"
)

// StockSummary is the ledger view of one (name, brand) item class
type StockSummary struct {
	Name           string          `json:"name"`
	Brand          string          `json:"brand"`
	Available      decimal.Decimal `json:"available"`
	Lots           int             `json:"lots"`
	MeasuredLots   int             `json:"measured_lots"`
	CountedLots    int             `json:"counted_lots"`
	UnitLots       int             `json:"unit_lots"`
	MeasuredAmount decimal.Decimal `json:"measured_amount"`
	Units          []string        `json:"units,omitempty"`
}

// Reconciliation compares a measured lot's balance with its movements
type Reconciliation struct {
	AssetID        string          `json:"asset_id"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	MovementTotal  decimal.Decimal `json:"movement_total"`
	Expected       decimal.Decimal `json:"expected_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Movements      int             `json:"movements"`
	IsConsistent   bool            `json:"is_consistent"`
}

// SumAvailable adds up the available amount of lots that count as stock
func SumAvailable(lots []Asset) decimal.Decimal {
	total := decimal.Zero
	for i := range lots {
		if !lots[i].CountsAsStock() {
			continue
		}
		total = total.Add(lots[i].AvailableAmount())
	}
	return total
}

// AvailableStock returns how much of (name, brand) is in storage
func (s *Service) AvailableStock(ctx context.Context, name, brand string) (decimal.Decimal, error) {
	lots, err := s.repo.FindLotsByNameBrand(ctx, name, brand, false)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to retrieve lots: %w", err)
	}
	return SumAvailable(lots), nil
}

// Summary groups in-storage lots by item class
func (s *Service) Summary(ctx context.Context, filter StockFilter) ([]StockSummary, error) {
	lots, err := s.repo.ListStockLots(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve lots: %w", err)
	}

	index := make(map[string]*StockSummary)
	var keys []string
	for i := range lots {
		lot := &lots[i]
		if !lot.CountsAsStock() {
			continue
		}

		key := strings.ToLower(lot.Name) + "\x00" + strings.ToLower(lot.Brand)
		sum, ok := index[key]
		if !ok {
			sum = &StockSummary{
				Name:           lot.Name,
				Brand:          lot.Brand,
				Available:      decimal.Zero,
				MeasuredAmount: decimal.Zero,
			}
			index[key] = sum
			keys = append(keys, key)
		}

		q := lot.LotQuantity()
		sum.Lots++
		sum.Available = sum.Available.Add(q.Available())
		switch q.Kind {
		case KindMeasured:
			sum.MeasuredLots++
			sum.MeasuredAmount = sum.MeasuredAmount.Add(q.Balance)
		case KindCounted:
			sum.CountedLots++
		default:
			sum.UnitLots++
		}
		if lot.Unit != "" && !containsString(sum.Units, lot.Unit) {
			sum.Units = append(sum.Units, lot.Unit)
		}
	}

	sort.Strings(keys)
	summaries := make([]StockSummary, 0, len(keys))
	for _, key := range keys {
		summaries = append(summaries, *index[key])
	}
	return summaries, nil
}

// Reconcile checks that the movements of a measured lot add up to its
// current balance. RECEIVED movements restate the opening balance and are
// not added on top of it.
func (s *Service) Reconcile(ctx context.Context, id string) (*Reconciliation, error) {
	lot, err := s.repo.FindLot(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lot.IsMeasured() {
		return nil, apperror.InvalidArgument("lot %s is not a measured lot", id)
	}

	movements, err := s.repo.ListMovements(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve movements: %w", err)
	}

	initial := decimal.Zero
	if lot.InitialBalance != nil {
		initial = *lot.InitialBalance
	}

	total := decimal.Zero
	for _, m := range movements {
		if m.MovementType == MovementReceived {
			continue
		}
		total = total.Add(m.Quantity)
	}

	expected := initial.Add(total)
	return &Reconciliation{
		AssetID:        lot.ID,
		InitialBalance: initial,
		MovementTotal:  total,
		Expected:       expected,
		CurrentBalance: *lot.CurrentBalance,
		Movements:      len(movements),
		IsConsistent:   expected.Equal(*lot.CurrentBalance),
	}, nil
}

func containsString(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
