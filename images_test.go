package copydesk

import (
	"bytes"
	"errors"
	"testing"

	"github.com/eringen/copydesk/imaging"
)

func TestReadUploadWithinLimit(t *testing.T) {
	body := []byte("small image body")
	got, err := readUpload(bytes.NewReader(body), 64)
	if err != nil {
		t.Fatalf("readUpload failed: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("readUpload = %q, want %q", got, body)
	}
}

func TestReadUploadExactLimit(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 64)
	got, err := readUpload(bytes.NewReader(body), 64)
	if err != nil {
		t.Fatalf("readUpload at exact limit failed: %v", err)
	}
	if len(got) != 64 {
		t.Errorf("readUpload returned %d bytes, want 64", len(got))
	}
}

func TestReadUploadRejectsOversizeBody(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 65)
	_, err := readUpload(bytes.NewReader(body), 64)
	if !errors.Is(err, errUploadTooLarge) {
		t.Fatalf("readUpload error = %v, want errUploadTooLarge (never a truncated read)", err)
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"jpeg", ".jpg"},
		{"png", ".png"},
		{"webp", ".webp"},
		{"", ".jpg"},
	}
	for _, tt := range tests {
		if got := extensionFor(imaging.Format(tt.format)); got != tt.want {
			t.Errorf("extensionFor(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}
