package catalog

import (
	"strings"

	"github.com/cobliteam/shelver/internal/shelvererr"
)

// Image is an immutable record describing a versioned machine image. It
// mirrors the fields of original_source's shelver.image.Image, with
// unknown catalog fields preserved in Extra so they can still be merged
// into a build's template context.
type Image struct {
	Name              string
	CurrentVersion    string
	Environment       string
	Description       string
	TemplatePath      string
	Base              string // "" if unset; otherwise "name" or "name:version"
	ArchiveSpec       map[string]any
	ProvisionSpec     map[string]any
	InstanceType      string
	Metadata          []string
	BuilderOverrides  map[string]any
	Extra             map[string]any
}

// BaseWithVersion splits Base on the first ':' into (name, version). If
// Base carries no version, version is "".
func (img *Image) BaseWithVersion() (name, version string) {
	if img.Base == "" {
		return "", ""
	}
	idx := strings.Index(img.Base, ":")
	if idx < 0 {
		return img.Base, ""
	}
	return img.Base[:idx], img.Base[idx+1:]
}

// defaults returns the built-in field defaults merged under a raw image
// spec before it is parsed into an Image, mirroring Image.DEFAULTS.
func defaults() map[string]any {
	return map[string]any{
		"environment":       "",
		"description":       "",
		"base":              "",
		"archive":           map[string]any{},
		"provision":         map[string]any{},
		"instance_type":     "",
		"metadata":          []any{},
		"builder_overrides": map[string]any{},
	}
}

// NewImageFromSpec builds an Image from a raw decoded catalog entry
// (already merged with any "defaults" section by Parse), deep
// freezing its nested collections. name and currentVersion come from the
// catalog key and the spec's "version" field respectively.
func NewImageFromSpec(name string, raw map[string]any) (*Image, error) {
	merged, err := Merge(defaults(), raw)
	if err != nil {
		return nil, shelvererr.NewConfigurationError("image %q: %v", name, err)
	}
	spec, ok := merged.(map[string]any)
	if !ok {
		return nil, shelvererr.NewConfigurationError("image %q: spec is not a mapping", name)
	}
	frozen := Freeze(spec).(map[string]any)

	version, _ := frozen["version"].(string)
	if version == "" {
		return nil, shelvererr.NewConfigurationError("image %q: missing version", name)
	}

	img := &Image{
		Name:           name,
		CurrentVersion: version,
		Environment:    stringField(frozen, "environment"),
		Description:    stringField(frozen, "description"),
		TemplatePath:   stringField(frozen, "template"),
		Base:           stringField(frozen, "base"),
		InstanceType:   stringField(frozen, "instance_type"),
		Extra:          map[string]any{},
	}

	if m, ok := frozen["archive"].(map[string]any); ok {
		img.ArchiveSpec = m
	}
	if m, ok := frozen["provision"].(map[string]any); ok {
		img.ProvisionSpec = m
	}
	if m, ok := frozen["builder_overrides"].(map[string]any); ok {
		img.BuilderOverrides = m
	}
	if seq, ok := frozen["metadata"].([]any); ok {
		for _, v := range seq {
			if s, ok := v.(string); ok {
				img.Metadata = append(img.Metadata, s)
			}
		}
	}

	known := map[string]bool{
		"version": true, "environment": true, "description": true,
		"template": true, "base": true, "instance_type": true,
		"archive": true, "provision": true, "builder_overrides": true,
		"metadata": true,
	}
	for k, v := range frozen {
		if !known[k] {
			img.Extra[k] = v
		}
	}

	return img, nil
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
