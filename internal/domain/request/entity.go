// internal/domain/request/entity.go
package request

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Status represents the request status
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusLogisticApproved Status = "LOGISTIC_APPROVED"
	StatusPurchaseApproved Status = "PURCHASE_APPROVED"
	StatusArrived          Status = "ARRIVED"
	StatusAwaitingHandover Status = "AWAITING_HANDOVER"
	StatusRejected         Status = "REJECTED"
	StatusCompleted        Status = "COMPLETED"
)

// ItemStatus represents the outcome for a single request item
type ItemStatus string

const (
	ItemStockAllocated    ItemStatus = "STOCK_ALLOCATED"
	ItemProcurementNeeded ItemStatus = "PROCUREMENT_NEEDED"
	ItemApproved          ItemStatus = "APPROVED"
	ItemPartial           ItemStatus = "PARTIAL"
	ItemRejected          ItemStatus = "REJECTED"
)

// AllocationTarget says where fulfilled stock goes
type AllocationTarget string

const (
	AllocationUsage     AllocationTarget = "USAGE"
	AllocationInventory AllocationTarget = "INVENTORY"
)

// OrderType represents how urgent or planned a request is
type OrderType string

const (
	OrderRegularStock OrderType = "REGULAR_STOCK"
	OrderUrgent       OrderType = "URGENT"
	OrderProjectBased OrderType = "PROJECT_BASED"
)

// ApprovalType identifies which approver acted
type ApprovalType string

const (
	ApprovalLogistic ApprovalType = "logistic"
	ApprovalPurchase ApprovalType = "purchase"
)

// Request represents a procurement/usage request document
type Request struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	DocNumber        string           `gorm:"uniqueIndex;not null;size:50" json:"doc_number"`
	Status           Status           `gorm:"not null;size:30;default:'PENDING';index" json:"status"`
	AllocationTarget AllocationTarget `gorm:"not null;size:20" json:"allocation_target"`
	OrderType        OrderType        `gorm:"not null;size:30" json:"order_type"`

	// Requester
	RequesterID   string `gorm:"not null;size:100;index" json:"requester_id"`
	RequesterName string `gorm:"size:255" json:"requester_name"`
	Division      string `gorm:"size:100" json:"division"`
	Project       string `gorm:"size:255" json:"project"`
	Justification string `gorm:"type:text" json:"justification"`

	// Approval trail
	LogisticApprovedBy string     `gorm:"size:255" json:"logistic_approved_by,omitempty"`
	LogisticApprovedAt *time.Time `json:"logistic_approved_at,omitempty"`
	PurchaseApprovedBy string     `gorm:"size:255" json:"purchase_approved_by,omitempty"`
	PurchaseApprovedAt *time.Time `json:"purchase_approved_at,omitempty"`
	RejectedBy         string     `gorm:"size:255" json:"rejected_by,omitempty"`
	RejectionReason    string     `gorm:"type:text" json:"rejection_reason,omitempty"`
	RejectedAt         *time.Time `json:"rejected_at,omitempty"`
	ArrivedBy          string     `gorm:"size:255" json:"arrived_by,omitempty"`
	ArrivedAt          *time.Time `json:"arrived_at,omitempty"`
	CompletedBy        string     `gorm:"size:255" json:"completed_by,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`

	IsRegistered bool `gorm:"default:false" json:"is_registered"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Items         []RequestItem      `gorm:"foreignKey:RequestID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	Registrations []ItemRegistration `gorm:"foreignKey:RequestID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`

	// PartiallyRegisteredItems is derived from Registrations on load
	PartiallyRegisteredItems RegistrationCounts `gorm:"-" json:"partially_registered_items"`
}

// RequestItem represents a single line of a request
type RequestItem struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	RequestID        uint       `gorm:"not null;index" json:"request_id"`
	ItemName         string     `gorm:"not null;size:255" json:"item_name"`
	ItemTypeBrand    string     `gorm:"not null;size:255" json:"item_type_brand"`
	Quantity         int        `gorm:"not null" json:"quantity"`
	Unit             string     `gorm:"size:20" json:"unit"`
	Status           ItemStatus `gorm:"not null;size:30" json:"status"`
	ApprovedQuantity *int       `json:"approved_quantity"`
	Reason           string     `gorm:"type:text" json:"reason"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ItemRegistration counts assets registered against one request item
type ItemRegistration struct {
	RequestID       uint      `gorm:"primaryKey;autoIncrement:false" json:"request_id"`
	RequestItemID   uint      `gorm:"primaryKey;autoIncrement:false" json:"request_item_id"`
	RegisteredCount int       `gorm:"not null;default:0" json:"registered_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName overrides
func (Request) TableName() string          { return "requests" }
func (RequestItem) TableName() string      { return "request_items" }
func (ItemRegistration) TableName() string { return "request_item_registrations" }

// RegistrationCounts maps request item id to assets registered so far
type RegistrationCounts map[uint]int

// Total sums every counter
func (c RegistrationCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// SyncRegistrationCounts rebuilds PartiallyRegisteredItems from Registrations
func (r *Request) SyncRegistrationCounts() {
	counts := make(RegistrationCounts, len(r.Registrations))
	for _, reg := range r.Registrations {
		counts[reg.RequestItemID] += reg.RegisteredCount
	}
	r.PartiallyRegisteredItems = counts
}

// Business methods

// EffectiveApprovedQuantity is the approved quantity, or the requested one
// when no approval has touched the item
func (i *RequestItem) EffectiveApprovedQuantity() int {
	if i.ApprovedQuantity != nil {
		return *i.ApprovedQuantity
	}
	return i.Quantity
}

// TotalApproved sums the effective approved quantity of every item
func (r *Request) TotalApproved() int {
	total := 0
	for i := range r.Items {
		total += r.Items[i].EffectiveApprovedQuantity()
	}
	return total
}

// FindItem returns the item with id, if it belongs to the request
func (r *Request) FindItem(id uint) (*RequestItem, bool) {
	for i := range r.Items {
		if r.Items[i].ID == id {
			return &r.Items[i], true
		}
	}
	return nil, false
}

// AllItemsHaveStatus reports whether every item has status
func (r *Request) AllItemsHaveStatus(status ItemStatus) bool {
	if len(r.Items) == 0 {
		return false
	}
	for i := range r.Items {
		if r.Items[i].Status != status {
			return false
		}
	}
	return true
}

// IsTerminal checks if the request can no longer change
func (r *Request) IsTerminal() bool {
	return r.Status == StatusRejected || r.Status == StatusCompleted
}

// CanBeDeleted checks if the request can be deleted
func (r *Request) CanBeDeleted() bool {
	return r.Status == StatusPending || r.Status == StatusRejected
}

// CanRegisterAssets checks if assets may be registered against the request
func (r *Request) CanRegisterAssets() bool {
	return r.Status == StatusArrived ||
		r.Status == StatusPurchaseApproved ||
		r.Status == StatusLogisticApproved
}

// FormatDocNumber renders a request document number
func FormatDocNumber(prefix string, day time.Time, sequence int) string {
	// Format: REQ-YYYYMMDD-NNNN
	return fmt.Sprintf("%s-%s-%04d", prefix, day.Format("20060102"), sequence)
}
