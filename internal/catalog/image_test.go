package catalog

import "testing"

func TestNewImageFromSpecRequiresVersion(t *testing.T) {
	_, err := NewImageFromSpec("web", map[string]any{})
	if err == nil {
		t.Fatalf("expected error for missing version")
	}
}

func TestNewImageFromSpecAppliesDefaults(t *testing.T) {
	img, err := NewImageFromSpec("web", map[string]any{
		"version": "1.0.0",
	})
	if err != nil {
		t.Fatalf("NewImageFromSpec returned error: %v", err)
	}
	if img.Name != "web" {
		t.Errorf("unexpected Name: %q", img.Name)
	}
	if img.CurrentVersion != "1.0.0" {
		t.Errorf("unexpected CurrentVersion: %q", img.CurrentVersion)
	}
	if img.Environment != "" {
		t.Errorf("expected default empty Environment, got %q", img.Environment)
	}
	if img.ArchiveSpec == nil {
		t.Errorf("expected default empty ArchiveSpec map, got nil")
	}
}

func TestNewImageFromSpecPreservesUnknownFields(t *testing.T) {
	img, err := NewImageFromSpec("web", map[string]any{
		"version":    "1.0.0",
		"extra_flag": true,
	})
	if err != nil {
		t.Fatalf("NewImageFromSpec returned error: %v", err)
	}
	if v, ok := img.Extra["extra_flag"]; !ok || v != true {
		t.Errorf("expected unknown field preserved in Extra, got %v", img.Extra)
	}
}

func TestImageBaseWithVersion(t *testing.T) {
	cases := []struct {
		base        string
		wantName    string
		wantVersion string
	}{
		{"", "", ""},
		{"ubuntu-base", "ubuntu-base", ""},
		{"ubuntu-base:2024.01", "ubuntu-base", "2024.01"},
	}

	for _, tc := range cases {
		img := &Image{Base: tc.base}
		name, version := img.BaseWithVersion()
		if name != tc.wantName || version != tc.wantVersion {
			t.Errorf("BaseWithVersion(%q) = (%q, %q), want (%q, %q)",
				tc.base, name, version, tc.wantName, tc.wantVersion)
		}
	}
}
