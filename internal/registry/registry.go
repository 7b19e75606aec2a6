// Package registry is the in-memory plus provider-backed index of images
// and artifacts, mirroring original_source's shelver.registry.Registry.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/cobliteam/shelver/internal/artifact"
	"github.com/cobliteam/shelver/internal/catalog"
	"github.com/cobliteam/shelver/internal/shelvererr"
	"github.com/samber/lo"
)

// Loader is implemented by a provider backend (internal/provider) and
// supplies the two provider-specific operations spec.md §4.5 calls
// "consumed by the core": reconstructing artifacts already known to the
// provider's own catalog, and loading one by its provider-assigned ID.
type Loader interface {
	LoadExistingArtifacts(ctx context.Context, region string) ([]*artifact.Artifact, error)
	LoadArtifactByID(ctx context.Context, id, region string) (*artifact.Artifact, error)
}

// Registry holds the three indexes described in spec.md §3: artifacts by
// key, versions per image, and the catalog back-reference.
type Registry struct {
	mu       sync.Mutex
	catalog  *catalog.Catalog
	loader   Loader
	byKey    map[string]*artifact.Artifact
	versions map[string]map[string]*artifact.Artifact // image name -> version -> artifact
}

func New(cat *catalog.Catalog, loader Loader) *Registry {
	return &Registry{
		catalog:  cat,
		loader:   loader,
		byKey:    map[string]*artifact.Artifact{},
		versions: map[string]map[string]*artifact.Artifact{},
	}
}

// Catalog returns the registry's backing image catalog.
func (r *Registry) Catalog() *catalog.Catalog {
	return r.catalog
}

// GetImage looks up an image by name.
func (r *Registry) GetImage(name string) (*catalog.Image, error) {
	img, ok := r.catalog.Get(name)
	if !ok {
		return nil, &shelvererr.UnknownImageError{Name: name}
	}
	return img, nil
}

// RegisterArtifact indexes a by its key (image:version for managed
// artifacts, bare name for unmanaged ones) and by its provider ID.
// Re-registering the identical artifact under the same key is a no-op;
// a conflicting artifact under an existing key is an error.
func (r *Registry) RegisterArtifact(a *artifact.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(a)
}

func (r *Registry) registerLocked(a *artifact.Artifact) error {
	key := a.Key()
	if existing, ok := r.byKey[key]; ok {
		if existing.ID == a.ID {
			return nil
		}
		return fmt.Errorf("conflicting artifact already registered for key %q", key)
	}
	r.byKey[key] = a
	if a.ID != "" {
		if existing, ok := r.byKey[a.ID]; ok && existing.Key() != key {
			return fmt.Errorf("conflicting artifact already registered for id %q", a.ID)
		}
		r.byKey[a.ID] = a
	}
	return nil
}

// AssociateArtifact records a as the artifact for (image, version) in the
// versions-per-image index. Associating a second, different artifact for
// the same (image, version) is an error.
func (r *Registry) AssociateArtifact(a *artifact.Artifact, image, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byVersion, ok := r.versions[image]
	if !ok {
		byVersion = map[string]*artifact.Artifact{}
		r.versions[image] = byVersion
	}
	if existing, ok := byVersion[version]; ok {
		if existing.ID == a.ID {
			return nil
		}
		return fmt.Errorf("duplicate artifact for %s:%s", image, version)
	}
	byVersion[version] = a
	return nil
}

// GetArtifact looks up a registered artifact by its key (name, or
// "image:version", or provider ID).
func (r *Registry) GetArtifact(key string) (*artifact.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byKey[key]
	if !ok {
		return nil, &shelvererr.UnknownArtifactError{Key: key}
	}
	return a, nil
}

// GetImageArtifact looks up the artifact registered for (image, version);
// version defaults to the image's current version when empty.
func (r *Registry) GetImageArtifact(img *catalog.Image, version string) (*artifact.Artifact, bool) {
	if version == "" {
		version = img.CurrentVersion
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byVersion, ok := r.versions[img.Name]
	if !ok {
		return nil, false
	}
	a, ok := byVersion[version]
	return a, ok
}

// GetImageVersions returns the set of versions with a registered artifact
// for img.
func (r *Registry) GetImageVersions(img *catalog.Image) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	byVersion, ok := r.versions[img.Name]
	if !ok {
		return nil
	}
	return lo.Keys(byVersion)
}

// LoadExistingArtifacts populates the registry from the provider backend,
// associating every managed artifact with the image name it is tagged
// with, whether or not that image is in the catalog.
func (r *Registry) LoadExistingArtifacts(ctx context.Context, region string) error {
	artifacts, err := r.loader.LoadExistingArtifacts(ctx, region)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range artifacts {
		if err := r.registerLocked(a); err != nil {
			return err
		}
		if a.Managed() {
			byVersion, ok := r.versions[a.Image]
			if !ok {
				byVersion = map[string]*artifact.Artifact{}
				r.versions[a.Image] = byVersion
			}
			byVersion[a.Version] = a
		}
	}
	return nil
}

// LoadArtifactByID asks the provider backend to load and register an
// artifact by its provider-assigned ID, associating it with image if
// given. Cross-region artifacts are the caller's responsibility to drop
// (spec.md §6: "cross-region artifacts returned by a build are dropped
// with a warning").
func (r *Registry) LoadArtifactByID(ctx context.Context, id, region, image, version string) (*artifact.Artifact, error) {
	a, err := r.loader.LoadArtifactByID(ctx, id, region)
	if err != nil {
		return nil, err
	}
	if image != "" && version != "" && !a.Managed() {
		a.Image = image
		a.Version = version
	}

	r.mu.Lock()
	if err := r.registerLocked(a); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.mu.Unlock()

	if image != "" && version != "" {
		if err := r.AssociateArtifact(a, image, version); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// CheckCycles builds the image dependency graph (an edge from an image to
// its base image, ignoring base references that resolve to an externally
// registered artifact rather than another catalog image) and runs a
// topological sort over it. A cycle or a dangling catalog-internal
// reference fails with a ConfigurationError listing the unresolved edges.
func (r *Registry) CheckCycles() ([][]string, error) {
	edges := map[string]map[string]struct{}{}
	for _, name := range r.catalog.Names() {
		edges[name] = map[string]struct{}{}
	}

	for _, img := range r.catalog.Images() {
		baseName, _ := img.BaseWithVersion()
		if baseName == "" {
			continue
		}
		if !r.catalog.Has(baseName) {
			// Base resolves to an externally registered artifact, not a
			// catalog image: no edge, per spec.md §4.5.
			continue
		}
		edges[img.Name][baseName] = struct{}{}
	}

	levels, remaining, ok := TopoSort(edges)
	if !ok {
		return nil, shelvererr.NewConfigurationError("image dependency cycle detected among: %v", remaining)
	}
	return levels, nil
}
