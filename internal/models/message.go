package models

import "time"

// Message directions.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// ChatMessage is one entry in a tenant's append-only message log, keyed by
// (tenant, counterparty, timestamp).
type ChatMessage struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	TenantID     string    `gorm:"size:64;not null;index:idx_tenant_counterparty"`
	Counterparty string    `gorm:"size:64;not null;index:idx_tenant_counterparty"`
	Direction    string    `gorm:"size:8;not null"` // "incoming" or "outgoing"
	Text         string    `gorm:"type:text"`
	Status       string    `gorm:"size:16;default:sent"` // delivery status
	Read         bool      `gorm:"column:is_read;default:false;index"`
	Timestamp    time.Time `gorm:"not null;index"`
	CreatedAt    time.Time
}
