package database

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDSN(t *testing.T) {
	got := dsn("brts.db", false)
	for _, want := range []string{"brts.db?", "_pragma=foreign_keys(1)", "_txlock=immediate", "_pragma=journal_mode(WAL)"} {
		if !strings.Contains(got, want) {
			t.Errorf("dsn %q missing %q", got, want)
		}
	}

	mem := dsn("file:test?mode=memory", true)
	if strings.Contains(mem, "journal_mode") {
		t.Errorf("memory dsn should not request WAL: %q", mem)
	}
	if !strings.HasPrefix(mem, "file:test?mode=memory&") {
		t.Errorf("memory dsn = %q, want params appended with &", mem)
	}
}

func TestOpenMigratesAndSeeds(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "brts.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"users", "admins", "roles", "complaints", "complaint_timeline", "withdrawals", "points_history", "system_config", "push_subscriptions", "otp_sessions"} {
		var n int
		if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n); err != nil {
			t.Fatalf("lookup %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("table %s missing", table)
		}
	}

	var minimum string
	if err := db.QueryRow(`SELECT value FROM system_config WHERE key = 'withdrawal.minimum_points'`).Scan(&minimum); err != nil {
		t.Fatalf("seeded config: %v", err)
	}
	if minimum != "100" {
		t.Errorf("minimum = %q, want 100", minimum)
	}

	var mode string
	if err := db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`INSERT INTO push_subscriptions (user_id, endpoint, p256dh_key, auth_key) VALUES (999, 'https://push.example.com/x', 'k', 'a')`)
	if err == nil {
		t.Error("expected foreign key violation for unknown user")
	}

	_, err = db.Exec(`INSERT INTO users (mobile, points) VALUES ('9000000000', -5)`)
	if err == nil {
		t.Error("expected check constraint to reject negative points")
	}
}
