// internal/domain/notification/entity.go
package notification

import "time"

// Type identifies what the notification is about
type Type string

const (
	TypeApprovalNeeded  Type = "REQUEST_APPROVAL_NEEDED"
	TypeStatusChanged   Type = "REQUEST_STATUS_CHANGED"
	TypeReadyToHandover Type = "REQUEST_READY_FOR_HANDOVER"
	TypeRejected        Type = "REQUEST_REJECTED"
)

// Role recipients are addressed with this prefix, users by name
const RolePrefix = "role:"

// Notification is a persisted in-app notification
type Notification struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Recipient     string     `gorm:"not null;size:100;index" json:"recipient"`
	Type          Type       `gorm:"not null;size:50" json:"type"`
	ReferenceType string     `gorm:"size:50" json:"reference_type"`
	ReferenceID   string     `gorm:"size:64;index" json:"reference_id"`
	Message       string     `gorm:"type:text" json:"message"`
	IsRead        bool       `gorm:"default:false" json:"is_read"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TableName overrides the table name
func (Notification) TableName() string { return "notifications" }

// Notice is the payload domain services dispatch
type Notice struct {
	Recipient     string `json:"recipient"`
	Type          Type   `json:"type"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	Message       string `json:"message"`
}

// ForRole addresses every user holding role
func ForRole(role string) string {
	return RolePrefix + role
}
