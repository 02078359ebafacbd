package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/zulandar/switchboard/internal/models"
)

// AppendMessage writes one entry to a tenant's message log.
func (s *Store) AppendMessage(msg *models.ChatMessage) error {
	if msg.TenantID == "" {
		return fmt.Errorf("store: append message: tenant id is required")
	}
	if msg.Counterparty == "" {
		return fmt.Errorf("store: append message: counterparty is required")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if err := s.db.Create(msg).Error; err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

// History returns a tenant's messages with one counterparty in timestamp
// order, and marks that counterparty's incoming messages as read.
func (s *Store) History(tenantID, counterparty string, limit int) ([]models.ChatMessage, error) {
	q := s.db.Where("tenant_id = ? AND counterparty = ?", tenantID, counterparty).
		Order("timestamp ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var msgs []models.ChatMessage
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("store: history %s/%s: %w", tenantID, counterparty, err)
	}

	// Viewing a conversation clears its unread count.
	if err := s.db.Model(&models.ChatMessage{}).
		Where("tenant_id = ? AND counterparty = ? AND direction = ? AND is_read = ?",
			tenantID, counterparty, models.DirectionIncoming, false).
		Update("is_read", true).Error; err != nil {
		return nil, fmt.Errorf("store: mark read %s/%s: %w", tenantID, counterparty, err)
	}
	return msgs, nil
}

// Conversation summarizes one counterparty's thread for a tenant.
type Conversation struct {
	Counterparty  string    `json:"counterparty"`
	LastText      string    `json:"last_text"`
	LastDirection string    `json:"last_direction"`
	LastAt        time.Time `json:"last_at"`
	Unread        int64     `json:"unread"`
}

// Conversations returns grouped summaries for a tenant: the latest message
// and unread count per counterparty, most recent thread first.
func (s *Store) Conversations(tenantID string) ([]Conversation, error) {
	var counterparties []string
	if err := s.db.Model(&models.ChatMessage{}).
		Where("tenant_id = ?", tenantID).
		Distinct("counterparty").
		Pluck("counterparty", &counterparties).Error; err != nil {
		return nil, fmt.Errorf("store: conversations %s: %w", tenantID, err)
	}

	convs := make([]Conversation, 0, len(counterparties))
	for _, cp := range counterparties {
		var last models.ChatMessage
		if err := s.db.Where("tenant_id = ? AND counterparty = ?", tenantID, cp).
			Order("timestamp DESC").Limit(1).First(&last).Error; err != nil {
			return nil, fmt.Errorf("store: conversations %s/%s: %w", tenantID, cp, err)
		}
		var unread int64
		if err := s.db.Model(&models.ChatMessage{}).
			Where("tenant_id = ? AND counterparty = ? AND direction = ? AND is_read = ?",
				tenantID, cp, models.DirectionIncoming, false).
			Count(&unread).Error; err != nil {
			return nil, fmt.Errorf("store: unread count %s/%s: %w", tenantID, cp, err)
		}
		convs = append(convs, Conversation{
			Counterparty:  cp,
			LastText:      last.Text,
			LastDirection: last.Direction,
			LastAt:        last.Timestamp,
			Unread:        unread,
		})
	}

	// Most recent activity first.
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastAt.After(convs[j].LastAt)
	})
	return convs, nil
}

// MessageCountSince returns per-tenant message volume since the cutoff,
// used by the daily digest.
func (s *Store) MessageCountSince(cutoff time.Time) (map[string]int64, error) {
	type row struct {
		TenantID string
		Count    int64
	}
	var rows []row
	if err := s.db.Model(&models.ChatMessage{}).
		Select("tenant_id, count(*) as count").
		Where("timestamp >= ?", cutoff).
		Group("tenant_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: message counts: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.TenantID] = r.Count
	}
	return counts, nil
}
