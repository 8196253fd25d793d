package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenSQLite_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("first OpenSQLite() failed: %v", err)
	}
	if err := s.Set(ctx, "t/a/ledger", []byte("row")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	s.Close()

	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(path, nil)
		if err != nil {
			t.Fatalf("OpenSQLite() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err = OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("final OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	got, err := s.Get(ctx, "t/a/ledger")
	if err != nil {
		t.Fatalf("Get() after reopen failed: %v", err)
	}
	if string(got) != "row" {
		t.Errorf("Get() = %q, want %q", got, "row")
	}

	for _, table := range []string{"kv", "kv_list"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpenSQLite_Pragmas(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestOpenSQLite_MigratesExpiryIndex(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_kv_expires_at'",
	).Scan(&name)
	if err != nil {
		t.Errorf("expiry index not found: %v", err)
	}
}

func TestSQLite_Sweep(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), func() time.Time { return now })
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.SetWithTTL(ctx, "t/a/snapshot/1", []byte("x"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "t/a/ledger", []byte("y")); err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Hour)
	n, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Sweep() removed %d rows, want 1", n)
	}
}

func TestPrefixRange(t *testing.T) {
	lo, hi := prefixRange("t/a/")
	if lo != "t/a/" || hi != "t/a0" {
		t.Errorf("prefixRange(t/a/) = %q, %q", lo, hi)
	}
}
