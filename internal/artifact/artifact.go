// Package artifact defines the concrete, provider-registered output of a
// build, mirroring original_source's shelver.artifact.Artifact.
package artifact

import "fmt"

// Artifact is either a managed artifact (Image set, with a Version) or an
// unmanaged/external artifact (only Name set). ID is provider-assigned
// and opaque to the core.
type Artifact struct {
	ID          string
	Name        string // set only for unmanaged artifacts
	ProviderTag string
	Image       string // image name; "" for unmanaged artifacts
	Version     string // "" for unmanaged artifacts
	Environment string
}

// NewManaged constructs an artifact that is the registered output of a
// build for (image, version).
func NewManaged(id, providerTag, image, version, environment string) (*Artifact, error) {
	if image == "" || version == "" {
		return nil, fmt.Errorf("managed artifact requires both image and version")
	}
	return &Artifact{ID: id, ProviderTag: providerTag, Image: image, Version: version, Environment: environment}, nil
}

// NewUnmanaged constructs an artifact known only by name, e.g. one
// pre-registered outside the catalog that a Base reference resolves to.
func NewUnmanaged(id, providerTag, name string) (*Artifact, error) {
	if name == "" {
		return nil, fmt.Errorf("unmanaged artifact requires a name")
	}
	return &Artifact{ID: id, ProviderTag: providerTag, Name: name}, nil
}

// Managed reports whether the artifact is the output of a catalog image
// build (image+version set) as opposed to an unmanaged/external artifact
// (name only).
func (a *Artifact) Managed() bool {
	return a.Image != "" && a.Version != ""
}

// Key is the registry index key for this artifact: "image:version" for a
// managed artifact, or its bare Name for an unmanaged one.
func (a *Artifact) Key() string {
	if a.Managed() {
		return a.Image + ":" + a.Version
	}
	return a.Name
}

func (a *Artifact) String() string {
	return fmt.Sprintf("Artifact(id=%s, key=%s)", a.ID, a.Key())
}
