// Package provider implements the provider plugin registry sketched in
// original_source's shelver/provider/base.py: a tagged-variant collapse
// of the source's deep Provider/Registry/Artifact class hierarchies into
// small interface sets, per spec.md §9's design note.
package provider

import (
	"context"
	"fmt"

	"github.com/cobliteam/shelver/internal/artifact"
)

// Loader is the capability every provider backend exposes to
// internal/registry.Registry.
type Loader interface {
	LoadExistingArtifacts(ctx context.Context, region string) ([]*artifact.Artifact, error)
	LoadArtifactByID(ctx context.Context, id, region string) (*artifact.Artifact, error)
}

// Factory constructs a Loader from a provider-specific config mapping.
type Factory func(config map[string]any) (Loader, error)

var registry = map[string]Factory{}

// Register adds a provider under name, mirroring Provider.register's
// tag-to-constructor mapping built at initialization.
func Register(name string, f Factory) {
	registry[name] = f
}

// New constructs the named provider's Loader, analogous to Provider.new.
func New(name string, config map[string]any) (Loader, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return f(config)
}

// AvailableNames lists every registered provider tag.
func AvailableNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
