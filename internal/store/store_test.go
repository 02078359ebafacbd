package store

import (
	"errors"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.SessionStatus{}, &models.ChatMessage{}, &models.Credential{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return New(db)
}

func TestCredentials_LoadMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadCredentials("adv-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCredentials_SaveLoadOverwrite(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveCredentials("adv-1", []byte("blob-v1")); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}
	got, err := s.LoadCredentials("adv-1")
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if string(got) != "blob-v1" {
		t.Errorf("blob = %q, want blob-v1", got)
	}

	// Credential updates re-save under the same key.
	if err := s.SaveCredentials("adv-1", []byte("blob-v2")); err != nil {
		t.Fatalf("SaveCredentials again: %v", err)
	}
	got, err = s.LoadCredentials("adv-1")
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if string(got) != "blob-v2" {
		t.Errorf("blob = %q, want blob-v2", got)
	}
}

func TestCredentials_Delete(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveCredentials("adv-1", []byte("blob")); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}
	if err := s.DeleteCredentials("adv-1"); err != nil {
		t.Fatalf("DeleteCredentials: %v", err)
	}
	if _, err := s.LoadCredentials("adv-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after delete", err)
	}
}

func TestStatus_UpsertAndRead(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertStatus("adv-1", "initializing", "", false); err != nil {
		t.Fatalf("UpsertStatus: %v", err)
	}
	if err := s.UpsertStatus("adv-1", "connected", "555", true); err != nil {
		t.Fatalf("UpsertStatus update: %v", err)
	}

	row, err := s.Status("adv-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if row.State != "connected" || row.Phone != "555" || !row.EverConnected {
		t.Errorf("row = %+v", row)
	}

	all, err := s.AllStatuses()
	if err != nil {
		t.Fatalf("AllStatuses: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("len(all) = %d, want 1 (upsert, not insert)", len(all))
	}
}

func TestStatus_Missing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Status("nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAppendMessage_Validation(t *testing.T) {
	s := openTestStore(t)
	if err := s.AppendMessage(&models.ChatMessage{Counterparty: "x"}); err == nil {
		t.Error("expected error for missing tenant id")
	}
	if err := s.AppendMessage(&models.ChatMessage{TenantID: "adv-1"}); err == nil {
		t.Error("expected error for missing counterparty")
	}
}

func TestHistory_OrderedAndMarksRead(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i, m := range []models.ChatMessage{
		{TenantID: "adv-1", Counterparty: "cp", Direction: models.DirectionIncoming, Text: "hola", Timestamp: base},
		{TenantID: "adv-1", Counterparty: "cp", Direction: models.DirectionOutgoing, Text: "buenas", Timestamp: base.Add(time.Minute)},
		{TenantID: "adv-1", Counterparty: "cp", Direction: models.DirectionIncoming, Text: "adios", Timestamp: base.Add(2 * time.Minute)},
		{TenantID: "adv-1", Counterparty: "other", Direction: models.DirectionIncoming, Text: "hey", Timestamp: base},
	} {
		m := m
		if err := s.AppendMessage(&m); err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
	}

	msgs, err := s.History("adv-1", "cp", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[0].Text != "hola" || msgs[2].Text != "adios" {
		t.Errorf("order: %q ... %q", msgs[0].Text, msgs[2].Text)
	}

	// Fetching history cleared the unread count for that counterparty only.
	convs, err := s.Conversations("adv-1")
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	byCP := map[string]Conversation{}
	for _, c := range convs {
		byCP[c.Counterparty] = c
	}
	if byCP["cp"].Unread != 0 {
		t.Errorf("cp unread = %d, want 0 after history fetch", byCP["cp"].Unread)
	}
	if byCP["other"].Unread != 1 {
		t.Errorf("other unread = %d, want 1", byCP["other"].Unread)
	}
}

func TestConversations_LatestAndOrdering(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	seed := []models.ChatMessage{
		{TenantID: "adv-1", Counterparty: "old", Direction: models.DirectionIncoming, Text: "first", Timestamp: base},
		{TenantID: "adv-1", Counterparty: "new", Direction: models.DirectionIncoming, Text: "ping", Timestamp: base.Add(time.Hour)},
		{TenantID: "adv-1", Counterparty: "new", Direction: models.DirectionOutgoing, Text: "pong", Timestamp: base.Add(2 * time.Hour)},
		{TenantID: "adv-2", Counterparty: "new", Direction: models.DirectionIncoming, Text: "not yours", Timestamp: base},
	}
	for i := range seed {
		if err := s.AppendMessage(&seed[i]); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	convs, err := s.Conversations("adv-1")
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("len = %d, want 2", len(convs))
	}
	if convs[0].Counterparty != "new" {
		t.Errorf("first = %q, want most recent thread", convs[0].Counterparty)
	}
	if convs[0].LastText != "pong" || convs[0].LastDirection != models.DirectionOutgoing {
		t.Errorf("latest = %+v", convs[0])
	}
	if convs[0].Unread != 1 {
		t.Errorf("unread = %d, want 1 (outgoing replies don't clear it)", convs[0].Unread)
	}
}

func TestMessageCountSince(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	seed := []models.ChatMessage{
		{TenantID: "adv-1", Counterparty: "cp", Direction: models.DirectionIncoming, Text: "a", Timestamp: now.Add(-2 * time.Hour)},
		{TenantID: "adv-1", Counterparty: "cp", Direction: models.DirectionOutgoing, Text: "b", Timestamp: now.Add(-time.Minute)},
		{TenantID: "adv-2", Counterparty: "cp", Direction: models.DirectionIncoming, Text: "c", Timestamp: now.Add(-48 * time.Hour)},
	}
	for i := range seed {
		if err := s.AppendMessage(&seed[i]); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	counts, err := s.MessageCountSince(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("MessageCountSince: %v", err)
	}
	if counts["adv-1"] != 2 {
		t.Errorf("adv-1 = %d, want 2", counts["adv-1"])
	}
	if _, ok := counts["adv-2"]; ok {
		t.Error("adv-2 should not appear (outside window)")
	}
}
