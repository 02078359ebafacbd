package store

import (
	"fmt"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoadCredentials returns the persisted credential blob for a tenant, or
// ErrNotFound when the tenant has no prior identity.
func (s *Store) LoadCredentials(tenantID string) ([]byte, error) {
	var cred models.Credential
	err := s.db.First(&cred, "tenant_id = ?", tenantID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load credentials %s: %w", tenantID, err)
	}
	return cred.Blob, nil
}

// SaveCredentials upserts the credential blob for a tenant. The blob is
// opaque engine material; it is stored as received.
func (s *Store) SaveCredentials(tenantID string, blob []byte) error {
	cred := models.Credential{TenantID: tenantID, Blob: blob}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"blob", "updated_at"}),
	}).Create(&cred).Error
	if err != nil {
		return fmt.Errorf("store: save credentials %s: %w", tenantID, err)
	}
	return nil
}

// DeleteCredentials removes a tenant's stored identity. Called after an
// explicit logout so the next start begins a fresh login.
func (s *Store) DeleteCredentials(tenantID string) error {
	err := s.db.Delete(&models.Credential{}, "tenant_id = ?", tenantID).Error
	if err != nil {
		return fmt.Errorf("store: delete credentials %s: %w", tenantID, err)
	}
	return nil
}
