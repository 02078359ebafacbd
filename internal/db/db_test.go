package db

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/models"
)

func TestDSN(t *testing.T) {
	cfg := config.DBConfig{User: "root", Host: "127.0.0.1", Port: 3306, Database: "switchboard"}
	got := DSN(cfg)
	want := "root@tcp(127.0.0.1:3306)/switchboard?parseTime=true"
	if got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestDSN_WithPassword(t *testing.T) {
	cfg := config.DBConfig{User: "swb", Password: "hunter2", Host: "db", Port: 3307, Database: "crm"}
	got := DSN(cfg)
	want := "swb:hunter2@tcp(db:3307)/crm?parseTime=true"
	if got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestConnect_SQLiteAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	gdb, err := Connect(config.DBConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	// Smoke check the schema exists by writing through each model.
	if err := gdb.Create(&models.SessionStatus{TenantID: "adv-1", State: "disconnected"}).Error; err != nil {
		t.Errorf("create SessionStatus: %v", err)
	}
	if err := gdb.Create(&models.Credential{TenantID: "adv-1", Blob: []byte("x")}).Error; err != nil {
		t.Errorf("create Credential: %v", err)
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DBConfig{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), "unsupported driver") {
		t.Errorf("error = %q", err.Error())
	}
}
