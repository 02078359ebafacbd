package store

import (
	"fmt"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertStatus records a tenant's current session status.
func (s *Store) UpsertStatus(tenantID, state, phone string, everConnected bool) error {
	row := models.SessionStatus{
		TenantID:      tenantID,
		State:         state,
		Phone:         phone,
		EverConnected: everConnected,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "phone", "ever_connected", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store: upsert status %s: %w", tenantID, err)
	}
	return nil
}

// Status returns a tenant's persisted session status, or ErrNotFound.
func (s *Store) Status(tenantID string) (*models.SessionStatus, error) {
	var row models.SessionStatus
	err := s.db.First(&row, "tenant_id = ?", tenantID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: status %s: %w", tenantID, err)
	}
	return &row, nil
}

// AllStatuses returns every persisted session status, newest activity first.
func (s *Store) AllStatuses() ([]models.SessionStatus, error) {
	var rows []models.SessionStatus
	if err := s.db.Order("updated_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list statuses: %w", err)
	}
	return rows, nil
}
