package models

import "time"

// Credential stores the opaque authentication blob the protocol engine
// emits for a tenant. The blob is engine-owned identity and key material;
// Switchboard never interprets it, only round-trips it across restarts.
type Credential struct {
	TenantID  string `gorm:"primaryKey;size:64"`
	Blob      []byte `gorm:"type:mediumblob"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
