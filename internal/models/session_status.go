// Package models defines the GORM models persisted by Switchboard.
package models

import "time"

// SessionStatus is the persisted connection status for a tenant. One row per
// tenant, upserted whenever the lifecycle controller records a transition.
type SessionStatus struct {
	TenantID      string `gorm:"primaryKey;size:64"`
	State         string `gorm:"size:16;not null"`
	Phone         string `gorm:"size:32"`
	EverConnected bool   `gorm:"default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
