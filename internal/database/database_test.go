package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/callbroker/callbroker/internal/database/models"
)

func TestOpenAndMigrate(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	// Verify database file was created.
	dbPath := filepath.Join(dir, "callbroker.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file was not created")
	}

	// Verify WAL mode is active.
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("querying journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	// Verify all tables exist.
	tables := []string{
		"schema_migrations", "accounts", "gateways", "system_config",
		"call_records", "admin_users",
	}
	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Errorf("checking table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s not found", table)
		}
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	// Open twice to verify migrations don't fail on re-run.
	db1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open() error: %v", err)
	}
	db1.Close()

	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	db2.Close()
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAccountRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewAccountRepository(db)

	// Get non-existent account returns nil, nil.
	acc, err := repo.GetByID(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if acc != nil {
		t.Errorf("GetByID(ghost) = %v, want nil", acc)
	}

	// Create and read back.
	in := &models.Account{
		ID:           "sim-1",
		Label:        "SIM 1",
		Component:    "modem-a",
		Capabilities: models.CapabilitySubscription | models.CapabilityCallProvider,
		SlotIndex:    0,
		Schemes:      `["tel"]`,
		Authorized:   true,
		Enabled:      true,
	}
	if err := repo.Create(ctx, in); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if in.Sequence == 0 {
		t.Error("expected sequence to be assigned")
	}

	acc, err = repo.GetByID(ctx, "sim-1")
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if acc == nil {
		t.Fatal("account not found after create")
	}
	if acc.Component != "modem-a" || !acc.HasCapability(models.CapabilitySubscription) {
		t.Errorf("unexpected account: %+v", acc)
	}

	// ListEnabled excludes disabled accounts.
	disabled := &models.Account{ID: "sim-2", Component: "modem-b", SlotIndex: 1, Authorized: true}
	if err := repo.Create(ctx, disabled); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	enabled, err := repo.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("ListEnabled() error: %v", err)
	}
	if len(enabled) != 1 || enabled[0].ID != "sim-1" {
		t.Errorf("ListEnabled() = %v, want [sim-1]", enabled)
	}

	// Update flips the enabled flag.
	disabled.Enabled = true
	if err := repo.Update(ctx, disabled); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	enabled, err = repo.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("ListEnabled() error: %v", err)
	}
	if len(enabled) != 2 {
		t.Errorf("ListEnabled() returned %d accounts, want 2", len(enabled))
	}

	// Count and delete.
	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
	if err := repo.Delete(ctx, "sim-2"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	acc, err = repo.GetByID(ctx, "sim-2")
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if acc != nil {
		t.Error("account still present after delete")
	}
}

func TestGatewayRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewGatewayRepository(db)

	gw := &models.Gateway{
		Component: "modem-a",
		Enabled:   true,
		Host:      "10.0.0.5",
		Port:      5060,
		Transport: "udp",
		Username:  "broker",
		Password:  "secret",
	}
	if err := repo.Create(ctx, gw); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if gw.ID == 0 {
		t.Error("expected id to be assigned")
	}

	got, err := repo.GetByComponent(ctx, "modem-a")
	if err != nil {
		t.Fatalf("GetByComponent() error: %v", err)
	}
	if got == nil || got.Host != "10.0.0.5" {
		t.Fatalf("GetByComponent() = %v", got)
	}

	got.Host = "10.0.0.6"
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	updated, err := repo.GetByID(ctx, gw.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if updated.Host != "10.0.0.6" {
		t.Errorf("host = %q, want 10.0.0.6", updated.Host)
	}

	if err := repo.Delete(ctx, gw.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	gone, err := repo.GetByID(ctx, gw.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if gone != nil {
		t.Error("gateway still present after delete")
	}
}

func TestSystemConfigRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewSystemConfigRepository(db)

	// Get non-existent key returns empty string.
	val, err := repo.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "" {
		t.Errorf("Get(nonexistent) = %q, want empty", val)
	}

	// Set and get.
	if err := repo.Set(ctx, ConfigKeyRelayAccount, "relay-1"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	val, err = repo.Get(ctx, ConfigKeyRelayAccount)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "relay-1" {
		t.Errorf("Get() = %q, want relay-1", val)
	}

	// Update existing key.
	if err := repo.Set(ctx, ConfigKeyRelayAccount, "relay-2"); err != nil {
		t.Fatalf("Set() update error: %v", err)
	}
	val, err = repo.Get(ctx, ConfigKeyRelayAccount)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "relay-2" {
		t.Errorf("Get() = %q, want relay-2", val)
	}

	// GetAll.
	if err := repo.Set(ctx, ConfigKeyDefaultOutgoingPrefix+"tel", "sim-1"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("GetAll() returned %d entries, want 2", len(all))
	}
}

func TestCallRecordRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewCallRecordRepository(db)

	dispositions := []string{"connected", "failed", "failed", "canceled"}
	for i, d := range dispositions {
		rec := &models.CallRecord{
			CallID:      string(rune('a' + i)),
			Handle:      "tel:5550100",
			StartTime:   time.Now().Add(time.Duration(i) * time.Second),
			Disposition: d,
			Attempts:    1,
		}
		if d == "failed" {
			rec.Cause = "outgoing_failure"
			rec.CauseMessage = "gateway responded 503 Service Unavailable"
		}
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	// Unfiltered list.
	all, total, err := repo.List(ctx, CallRecordListFilter{Limit: 10})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 4 || len(all) != 4 {
		t.Errorf("List() = %d records, total %d, want 4/4", len(all), total)
	}

	// Disposition filter with pagination.
	failed, total, err := repo.List(ctx, CallRecordListFilter{Limit: 1, Disposition: "failed"})
	if err != nil {
		t.Fatalf("List(failed) error: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if len(failed) != 1 {
		t.Errorf("len = %d, want 1 (limit)", len(failed))
	}

	// Lookup by call id.
	rec, err := repo.GetByCallID(ctx, "b")
	if err != nil {
		t.Fatalf("GetByCallID() error: %v", err)
	}
	if rec == nil || rec.Disposition != "failed" {
		t.Fatalf("GetByCallID(b) = %v", rec)
	}
	if rec.CauseMessage == "" {
		t.Error("expected cause message on failed record")
	}

	// Disposition counts.
	counts, err := repo.CountByDisposition(ctx)
	if err != nil {
		t.Fatalf("CountByDisposition() error: %v", err)
	}
	if counts["connected"] != 1 || counts["failed"] != 2 || counts["canceled"] != 1 {
		t.Errorf("CountByDisposition() = %v", counts)
	}
}

func TestAdminUserRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewAdminUserRepository(db)

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}

	hash, err := HashPassword("secret-pass")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if err := repo.Create(ctx, &models.AdminUser{Username: "admin", PasswordHash: hash}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	user, err := repo.GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetByUsername() error: %v", err)
	}
	if user == nil {
		t.Fatal("user not found after create")
	}

	ok, err := CheckPassword("secret-pass", user.PasswordHash)
	if err != nil {
		t.Fatalf("CheckPassword() error: %v", err)
	}
	if !ok {
		t.Error("expected password to verify")
	}

	missing, err := repo.GetByUsername(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetByUsername() error: %v", err)
	}
	if missing != nil {
		t.Errorf("GetByUsername(ghost) = %v, want nil", missing)
	}
}
