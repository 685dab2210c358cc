// internal/domain/asset/service.go
package asset

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/asset-inventory/internal/domain/activity"
	"github.com/your-org/asset-inventory/internal/pkg/apperror"
	"github.com/your-org/asset-inventory/internal/pkg/txn"
)

// Service handles stock ledger business logic
type Service struct {
	repo     Repository
	tx       txn.Transactor
	activity activity.Recorder
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewService creates a new asset service
func NewService(repo Repository, tx txn.Transactor, recorder activity.Recorder, logger logrus.FieldLogger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		activity: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// NewLot describes a lot to be received into storage
type NewLot struct {
	RequestItemID  *uint            `json:"request_item_id,omitempty"`
	Name           string           `json:"name" binding:"required"`
	Brand          string           `json:"brand" binding:"required"`
	Category       string           `json:"category"`
	SerialNumber   string           `json:"serial_number"`
	Quantity       *int             `json:"quantity,omitempty"`
	InitialBalance *decimal.Decimal `json:"initial_balance,omitempty"`
	Unit           string           `json:"unit"`
	Location       string           `json:"location"`
}

// ReceiveContext identifies who received lots and why
type ReceiveContext struct {
	RequestID    *uint
	ReferenceID  string
	RegisteredBy string
}

func (l *NewLot) validate() error {
	if strings.TrimSpace(l.Name) == "" || strings.TrimSpace(l.Brand) == "" {
		return apperror.InvalidArgument("lot name and brand are required")
	}
	if l.Quantity != nil && *l.Quantity <= 0 {
		return apperror.InvalidArgument("lot quantity for %s must be positive", l.Name)
	}
	if l.InitialBalance != nil && !l.InitialBalance.IsPositive() {
		return apperror.InvalidArgument("initial balance for %s must be positive", l.Name)
	}
	if l.Quantity != nil && l.InitialBalance != nil {
		return apperror.InvalidArgument("lot %s cannot carry both a quantity and a balance", l.Name)
	}
	return nil
}

// ReceiveLots creates IN_STORAGE lots with freshly allocated ids. Measured
// lots get a RECEIVED movement for their opening balance. The caller's
// transaction is joined when present.
func (s *Service) ReceiveLots(ctx context.Context, lots []NewLot, rc ReceiveContext) ([]Asset, error) {
	for i := range lots {
		if err := lots[i].validate(); err != nil {
			return nil, err
		}
	}

	var created []Asset
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		year := s.now().Year()
		assets := make([]Asset, 0, len(lots))
		for _, lot := range lots {
			seq, err := s.repo.NextAssetNumber(ctx, year)
			if err != nil {
				return err
			}

			a := Asset{
				ID:            FormatAssetID(year, seq),
				Name:          strings.TrimSpace(lot.Name),
				Brand:         strings.TrimSpace(lot.Brand),
				Category:      lot.Category,
				SerialNumber:  lot.SerialNumber,
				Quantity:      lot.Quantity,
				Unit:          lot.Unit,
				Status:        StatusInStorage,
				Location:      lot.Location,
				RequestID:     rc.RequestID,
				RequestItemID: lot.RequestItemID,
				RegisteredBy:  rc.RegisteredBy,
			}
			if lot.InitialBalance != nil {
				initial := *lot.InitialBalance
				current := *lot.InitialBalance
				a.InitialBalance = &initial
				a.CurrentBalance = &current
			}
			assets = append(assets, a)
		}

		if err := s.repo.CreateAssets(ctx, assets); err != nil {
			return err
		}

		for _, a := range assets {
			if !a.IsMeasured() {
				continue
			}
			zero := decimal.Zero
			opening := *a.CurrentBalance
			if err := s.repo.InsertMovement(ctx, &StockMovement{
				AssetID:         a.ID,
				MovementType:    MovementReceived,
				Quantity:        opening,
				Unit:            a.Unit,
				PreviousBalance: &zero,
				NewBalance:      &opening,
				ReferenceType:   ReferenceRequest,
				ReferenceID:     rc.ReferenceID,
				PerformedBy:     rc.RegisteredBy,
			}); err != nil {
				return err
			}
		}

		created = assets
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"count":        len(created),
		"reference_id": rc.ReferenceID,
	}).Info("Lots received into storage")

	return created, nil
}

// GetLot returns a single lot
func (s *Service) GetLot(ctx context.Context, id string) (*Asset, error) {
	lot, err := s.repo.FindLot(ctx, id)
	if err != nil {
		return nil, err
	}
	return lot, nil
}

// GetMovements returns the movement history of a lot, oldest first
func (s *Service) GetMovements(ctx context.Context, id string) ([]StockMovement, error) {
	if _, err := s.repo.FindLot(ctx, id); err != nil {
		return nil, err
	}
	movements, err := s.repo.ListMovements(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve movements: %w", err)
	}
	return movements, nil
}
