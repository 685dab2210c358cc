// internal/domain/asset/entity.go
package asset

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Status represents the lifecycle status of an asset
type Status string

const (
	StatusInStorage      Status = "IN_STORAGE"
	StatusInUse          Status = "IN_USE"
	StatusOnLoan         Status = "ON_LOAN"
	StatusUnderRepair    Status = "UNDER_REPAIR"
	StatusDamaged        Status = "DAMAGED"
	StatusDecommissioned Status = "DECOMMISSIONED"
)

// MovementType represents the type of stock movement
type MovementType string

const (
	MovementReceived MovementType = "RECEIVED" // Initial balance of a measured lot
	MovementConsumed MovementType = "CONSUMED" // Installation, maintenance
	MovementAdjusted MovementType = "ADJUSTED" // Stock take corrections
)

// Reference types for movements
const (
	ReferenceRequest      = "request"
	ReferenceInstallation = "installation"
	ReferenceMaintenance  = "maintenance"
)

// Asset is a single stock lot: one physical unit, a counted batch or a
// measured bulk lot (cable by the meter).
type Asset struct {
	ID             string           `gorm:"primaryKey;size:20" json:"id"` // AST-YYYY-NNNN
	Name           string           `gorm:"not null;size:255;index:idx_assets_name_brand,priority:1" json:"name"`
	Brand          string           `gorm:"not null;size:255;index:idx_assets_name_brand,priority:2" json:"brand"`
	Category       string           `gorm:"size:100" json:"category"`
	SerialNumber   string           `gorm:"size:100;index" json:"serial_number,omitempty"`
	Quantity       *int             `json:"quantity,omitempty"`
	InitialBalance *decimal.Decimal `gorm:"type:numeric(18,3)" json:"initial_balance,omitempty"`
	CurrentBalance *decimal.Decimal `gorm:"type:numeric(18,3)" json:"current_balance,omitempty"`
	Unit           string           `gorm:"size:20" json:"unit"`
	Status         Status           `gorm:"not null;size:30;default:'IN_STORAGE';index" json:"status"`
	Location       string           `gorm:"size:100" json:"location"`
	RequestID      *uint            `gorm:"index" json:"request_id,omitempty"`
	RequestItemID  *uint            `gorm:"index" json:"request_item_id,omitempty"`
	RegisteredBy   string           `gorm:"size:100" json:"registered_by"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	DeletedAt      gorm.DeletedAt   `gorm:"index" json:"-"`
}

// StockMovement is an append-only ledger entry for a lot balance change
type StockMovement struct {
	ID              uint             `gorm:"primaryKey" json:"id"`
	AssetID         string           `gorm:"not null;size:20;index" json:"asset_id"`
	MovementType    MovementType     `gorm:"not null;size:20" json:"movement_type"`
	Quantity        decimal.Decimal  `gorm:"type:numeric(18,3);not null" json:"quantity"` // signed delta
	Unit            string           `gorm:"size:20" json:"unit"`
	PreviousBalance *decimal.Decimal `gorm:"type:numeric(18,3)" json:"previous_balance,omitempty"`
	NewBalance      *decimal.Decimal `gorm:"type:numeric(18,3)" json:"new_balance,omitempty"`
	ReferenceType   string           `gorm:"size:50" json:"reference_type"`
	ReferenceID     string           `gorm:"size:64;index" json:"reference_id"`
	Notes           string           `gorm:"type:text" json:"notes"`
	PerformedBy     string           `gorm:"size:100" json:"performed_by"`
	CreatedAt       time.Time        `json:"created_at"`
}

// TableName overrides
func (Asset) TableName() string         { return "assets" }
func (StockMovement) TableName() string { return "stock_movements" }

// QuantityKind tags how a lot is counted
type QuantityKind int

const (
	KindUnit     QuantityKind = iota // one individual item
	KindCounted                      // discrete count of identical items
	KindMeasured                     // bulk balance in a unit of measure
)

func (k QuantityKind) String() string {
	switch k {
	case KindCounted:
		return "counted"
	case KindMeasured:
		return "measured"
	default:
		return "unit"
	}
}

// LotQuantity is the explicit form of a lot's amount
type LotQuantity struct {
	Kind    QuantityKind
	Count   int
	Balance decimal.Decimal
}

// Counted builds a discrete lot quantity
func Counted(n int) LotQuantity { return LotQuantity{Kind: KindCounted, Count: n} }

// Measured builds a measured lot quantity
func Measured(balance decimal.Decimal) LotQuantity {
	return LotQuantity{Kind: KindMeasured, Balance: balance}
}

// Unit builds an individual item quantity
func Unit() LotQuantity { return LotQuantity{Kind: KindUnit} }

// Available returns how much of the lot can be allocated
func (q LotQuantity) Available() decimal.Decimal {
	switch q.Kind {
	case KindMeasured:
		return q.Balance
	case KindCounted:
		return decimal.NewFromInt(int64(q.Count))
	default:
		return decimal.NewFromInt(1)
	}
}

// LotQuantity classifies the asset. A balance wins over a count.
func (a *Asset) LotQuantity() LotQuantity {
	switch {
	case a.CurrentBalance != nil:
		return Measured(*a.CurrentBalance)
	case a.Quantity != nil:
		return Counted(*a.Quantity)
	default:
		return Unit()
	}
}

// AvailableAmount is the lot's contribution to stock
func (a *Asset) AvailableAmount() decimal.Decimal {
	return a.LotQuantity().Available()
}

// IsMeasured reports whether the lot carries a balance
func (a *Asset) IsMeasured() bool {
	return a.CurrentBalance != nil
}

// CountsAsStock reports whether the lot contributes to available stock
func (a *Asset) CountsAsStock() bool {
	return a.Status == StatusInStorage && !a.DeletedAt.Valid
}

// FormatAssetID renders the year scoped asset id
func FormatAssetID(year, sequence int) string {
	return fmt.Sprintf("AST-%d-%04d", year, sequence)
}

// AssetIDPrefix is the LIKE prefix of a year's asset ids
func AssetIDPrefix(year int) string {
	return fmt.Sprintf("AST-%d-", year)
}
