package catalog_test

import (
	"context"
	"os"
	"testing"
	"testing/fstest"

	"github.com/bdobrica/Kokoro/internal/kokoro/catalog"
	"github.com/bdobrica/Kokoro/internal/kokoro/profile"
	"github.com/bdobrica/Kokoro/internal/kokoro/store"
)

const linaYAML = `name: lina
display_name: 莉娜
background_story: 边境小镇出身的剑士。
profile:
  姓名: 莉娜
  性格: 冷静而坚定
  技能:
    - 剑术
    - 魔法
max_length: 120
`

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
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

func TestParse(t *testing.T) {
	def, err := catalog.Parse([]byte(linaYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if def.Name != "lina" || def.DisplayName != "莉娜" || def.MaxLength != 120 {
		t.Errorf("definition = %+v", def)
	}
}

func TestParse_MissingName(t *testing.T) {
	if _, err := catalog.Parse([]byte("display_name: x\n")); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestParse_DisplayNameDefaultsToName(t *testing.T) {
	def, err := catalog.Parse([]byte("name: kai\nprofile:\n  name: Kai\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if def.DisplayName != "kai" {
		t.Errorf("display_name = %q, want fallback to slug", def.DisplayName)
	}
}

func TestSeed_CreatesAndRefreshes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"personas/lina.yaml": {Data: []byte(linaYAML)},
		"personas/notes.txt": {Data: []byte("ignored")},
		"personas/empty.yml": {Data: []byte("name: kai\nprofile:\n  name: Kai\n  personality: quiet\n")},
	}

	n, err := catalog.Seed(ctx, fsys, "personas", s)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if n != 2 {
		t.Errorf("seeded = %d, want 2", n)
	}

	p, err := s.GetPersonaByName(ctx, "lina")
	if err != nil {
		t.Fatalf("GetPersonaByName: %v", err)
	}
	// The Chinese alias keys were normalized and the 魔法 keyword selected
	// the fantasy variant.
	if p.Profile.Name != "莉娜" || p.Profile.Personality != "冷静而坚定" {
		t.Errorf("profile = %+v", p.Profile)
	}
	if p.Profile.SchemaType != profile.VariantFantasy {
		t.Errorf("variant = %v, want fantasy", p.Profile.SchemaType)
	}
	if p.MaxLength != 120 {
		t.Errorf("max_length = %d", p.MaxLength)
	}

	// Seeding again refreshes in place instead of failing on the unique slug.
	if _, err := catalog.Seed(ctx, fsys, "personas", s); err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	personas, err := s.ListPersonas(ctx)
	if err != nil {
		t.Fatalf("ListPersonas: %v", err)
	}
	if len(personas) != 2 {
		t.Errorf("len(personas) = %d, want 2", len(personas))
	}
}
