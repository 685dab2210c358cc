// internal/domain/activity/entity.go
package activity

import (
	"time"

	"gorm.io/datatypes"
)

// Action names recorded in the activity log
const (
	ActionCreate     = "CREATE"
	ActionApprove    = "APPROVE"
	ActionReject     = "REJECT"
	ActionArrive     = "ARRIVE"
	ActionComplete   = "COMPLETE"
	ActionDelete     = "DELETE"
	ActionRegister   = "REGISTER_ASSETS"
	ActionConsume    = "CONSUME"
	ActionReceive    = "RECEIVE"
	EntityRequest    = "Request"
	EntityAsset      = "Asset"
	EntityStockBatch = "StockBatch"
)

// Log is one persisted activity entry
type Log struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	EntityType    string         `gorm:"not null;size:50;index:idx_activity_logs_entity" json:"entity_type"`
	EntityID      string         `gorm:"not null;size:64;index:idx_activity_logs_entity" json:"entity_id"`
	Action        string         `gorm:"not null;size:50" json:"action"`
	Actor         string         `gorm:"size:100" json:"actor"`
	Changes       datatypes.JSON `json:"changes"`
	CorrelationID string         `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TableName overrides the table name
func (Log) TableName() string { return "activity_logs" }

// Entry is what domain services hand to the recorder
type Entry struct {
	EntityType string
	EntityID   string
	Action     string
	Actor      string
	Changes    map[string]interface{}
}
