package copydesk

import (
	"encoding/json"
	"fmt"
	"path"
	"time"
)

// ChangeKind identifies what kind of edit a ChangeRecord carries. The set is
// closed: every switch over ChangeKind in this package handles all values
// explicitly, so adding a kind forces the compiler-visible call sites to be
// revisited.
type ChangeKind string

const (
	KindPostCreate     ChangeKind = "post_create"
	KindPostUpdate     ChangeKind = "post_update"
	KindImageUpdate    ChangeKind = "image_update"
	KindThemeUpdate    ChangeKind = "theme_update"
	KindSEOUpdate      ChangeKind = "seo_update"
	KindSettingsUpdate ChangeKind = "settings_update"
)

// Valid reports whether k is one of the known change kinds.
func (k ChangeKind) Valid() bool {
	switch k {
	case KindPostCreate, KindPostUpdate, KindImageUpdate, KindThemeUpdate, KindSEOUpdate, KindSettingsUpdate:
		return true
	}
	return false
}

// Category groups kinds for display counts and commit-message summaries.
type Category string

const (
	CategoryPost     Category = "post"
	CategoryImage    Category = "image"
	CategoryTheme    Category = "theme"
	CategorySEO      Category = "seo"
	CategorySettings Category = "settings"
)

// Category returns the display category for the kind.
func (k ChangeKind) Category() Category {
	switch k {
	case KindPostCreate, KindPostUpdate:
		return CategoryPost
	case KindImageUpdate:
		return CategoryImage
	case KindThemeUpdate:
		return CategoryTheme
	case KindSEOUpdate:
		return CategorySEO
	case KindSettingsUpdate:
		return CategorySettings
	}
	return Category(k)
}

// ChangeRecord is a single pending edit. Payload holds the full desired end
// state for the target (last writer wins), not a diff. Records are keyed by
// (Kind, TargetKey); re-enqueueing the same key replaces the payload but
// keeps CreatedAt and the original queue position.
type ChangeRecord struct {
	ID        string          `json:"id"`
	Kind      ChangeKind      `json:"kind"`
	TargetKey string          `json:"targetKey"`
	Payload   json.RawMessage `json:"payload"`
	Label     string          `json:"label"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ChangeID derives the stable record id from kind and target key.
func ChangeID(kind ChangeKind, targetKey string) string {
	return string(kind) + ":" + targetKey
}

// NewChangeRecord builds a record with a derived id and current timestamps.
func NewChangeRecord(kind ChangeKind, targetKey string, payload json.RawMessage, label string) (ChangeRecord, error) {
	if !kind.Valid() {
		return ChangeRecord{}, fmt.Errorf("new change record: unknown kind %q", kind)
	}
	if targetKey == "" {
		return ChangeRecord{}, fmt.Errorf("new change record: target key is required")
	}
	now := time.Now().UTC()
	return ChangeRecord{
		ID:        ChangeID(kind, targetKey),
		Kind:      kind,
		TargetKey: targetKey,
		Payload:   payload,
		Label:     label,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// filePayload is the expected shape of ChangeRecord.Payload. Path may be
// empty; the coordinator then derives one from (kind, targetKey). Encoding
// is "" for literal text content or "base64" for binary content.
type filePayload struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"`
}

// defaultPath maps (kind, targetKey) onto the repository file the change
// owns. TargetKey is the file-equivalent unit, so one record is always one
// file write.
func defaultPath(kind ChangeKind, targetKey string) string {
	switch kind {
	case KindPostCreate, KindPostUpdate:
		return path.Join("content", "posts", targetKey+".md")
	case KindImageUpdate:
		return path.Join("public", "uploads", targetKey)
	case KindThemeUpdate:
		return "theme.json"
	case KindSEOUpdate:
		return "seo.json"
	case KindSettingsUpdate:
		return "site.json"
	}
	return targetKey
}
