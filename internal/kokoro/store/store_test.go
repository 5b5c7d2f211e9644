package store_test

import (
	"os"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/bdobrica/Kokoro/internal/kokoro/profile"
	"github.com/bdobrica/Kokoro/internal/kokoro/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	// Use a temp file that is cleaned up after the test
	f, err := os.CreateTemp(t.TempDir(), "kokoro-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testProfile(name string) *profile.Profile {
	return &profile.Profile{
		Name:        name,
		Personality: "冷静",
		SchemaType:  profile.VariantDefault,
		Validated:   true,
	}
}

func TestStoreMigrations_Idempotent(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "kokoro-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s.Close()

	// Reopening must not re-apply migrations.
	s, err = store.New(f.Name())
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	s.Close()
}

// TestStoreMigrations_DuplicateVersionRejected ensures two migration files
// claiming the same version fail loudly instead of racing on filename order.
func TestStoreMigrations_DuplicateVersionRejected(t *testing.T) {
	s := newTestStore(t)

	dup := fstest.MapFS{
		"migrations/0002_add_tags.sql":  {Data: []byte("CREATE TABLE tags (id TEXT PRIMARY KEY);")},
		"migrations/0002_add_notes.sql": {Data: []byte("CREATE TABLE notes (id TEXT PRIMARY KEY);")},
	}

	err := s.RunMigrationsFrom(dup)
	if err == nil {
		t.Fatal("expected error for duplicate migration version")
	}
	if !strings.Contains(err.Error(), "duplicate migration version") {
		t.Errorf("err = %v", err)
	}
}
