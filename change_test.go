package copydesk

import (
	"encoding/json"
	"testing"
)

func TestChangeIDIsStable(t *testing.T) {
	a := ChangeID(KindPostUpdate, "hello-world")
	b := ChangeID(KindPostUpdate, "hello-world")
	if a != b {
		t.Fatalf("ChangeID not stable: %q vs %q", a, b)
	}
	if a == ChangeID(KindImageUpdate, "hello-world") {
		t.Fatal("different kinds must derive different ids")
	}
	if a == ChangeID(KindPostUpdate, "other-post") {
		t.Fatal("different targets must derive different ids")
	}
}

func TestNewChangeRecordValidation(t *testing.T) {
	if _, err := NewChangeRecord("bogus_kind", "target", nil, ""); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := NewChangeRecord(KindPostUpdate, "", nil, ""); err == nil {
		t.Error("expected error for empty target key")
	}

	r, err := NewChangeRecord(KindThemeUpdate, "site-theme", json.RawMessage(`{}`), "Theme tweak")
	if err != nil {
		t.Fatalf("NewChangeRecord failed: %v", err)
	}
	if r.ID != "theme_update:site-theme" {
		t.Errorf("ID = %q, want %q", r.ID, "theme_update:site-theme")
	}
	if r.CreatedAt.IsZero() || !r.CreatedAt.Equal(r.UpdatedAt) {
		t.Errorf("fresh record should have CreatedAt == UpdatedAt, got %v / %v", r.CreatedAt, r.UpdatedAt)
	}
}

func TestChangeKindCategory(t *testing.T) {
	tests := []struct {
		kind ChangeKind
		want Category
	}{
		{KindPostCreate, CategoryPost},
		{KindPostUpdate, CategoryPost},
		{KindImageUpdate, CategoryImage},
		{KindThemeUpdate, CategoryTheme},
		{KindSEOUpdate, CategorySEO},
		{KindSettingsUpdate, CategorySettings},
	}
	for _, tt := range tests {
		if got := tt.kind.Category(); got != tt.want {
			t.Errorf("%s.Category() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	tests := []struct {
		kind   ChangeKind
		target string
		want   string
	}{
		{KindPostCreate, "hello-world", "content/posts/hello-world.md"},
		{KindPostUpdate, "hello-world", "content/posts/hello-world.md"},
		{KindImageUpdate, "hero.jpg", "public/uploads/hero.jpg"},
		{KindThemeUpdate, "site-theme", "theme.json"},
		{KindSEOUpdate, "site-seo", "seo.json"},
		{KindSettingsUpdate, "site-settings", "site.json"},
	}
	for _, tt := range tests {
		if got := defaultPath(tt.kind, tt.target); got != tt.want {
			t.Errorf("defaultPath(%s, %s) = %q, want %q", tt.kind, tt.target, got, tt.want)
		}
	}
}
