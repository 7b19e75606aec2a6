package catalog

import (
	"fmt"
	"os"

	"github.com/cobliteam/shelver/internal/shelvererr"
	"go.yaml.in/yaml/v3"
)

// Catalog is an immutable mapping of image name to Image, plus the set of
// names for fast membership checks, mirroring Image.load_all's document
// of {defaults?, provider?, <image name>: <spec>, ...}.
type Catalog struct {
	images map[string]*Image
	names  map[string]struct{}
	order  []string // insertion order, for deterministic iteration
}

// reservedKeys are catalog-document keys that are not image names.
var reservedKeys = map[string]bool{
	"defaults":    true,
	"provider":    true,
	"coordinator": true,
}

// Load reads and parses a catalog document from path. Unknown fields
// found on an image spec are preserved (Image.Extra) rather than
// rejected, per spec.md §6 ("unknown fields are preserved into the image
// record").
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes raw YAML bytes into a Catalog.
func Parse(data []byte) (*Catalog, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, shelvererr.NewConfigurationError("invalid catalog document: %v", err)
	}

	defaultsSpec, _ := doc["defaults"].(map[string]any)

	cat := &Catalog{
		images: map[string]*Image{},
		names:  map[string]struct{}{},
	}

	// Visit top-level keys in document order so that order reflects the
	// catalog as written.
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, shelvererr.NewConfigurationError("invalid catalog document: %v", err)
	}
	var keys []string
	if len(root.Content) > 0 && root.Content[0].Kind == yaml.MappingNode {
		for i := 0; i+1 < len(root.Content[0].Content); i += 2 {
			keys = append(keys, root.Content[0].Content[i].Value)
		}
	}

	for _, name := range keys {
		raw, present := doc[name]
		if !present || reservedKeys[name] {
			continue
		}
		spec, ok := raw.(map[string]any)
		if !ok {
			return nil, shelvererr.NewConfigurationError("image %q: spec must be a mapping", name)
		}

		merged := spec
		if defaultsSpec != nil {
			m, err := Merge(defaultsSpec, spec)
			if err != nil {
				return nil, shelvererr.NewConfigurationError("image %q: merging defaults: %v", name, err)
			}
			merged, ok = m.(map[string]any)
			if !ok {
				return nil, shelvererr.NewConfigurationError("image %q: merged spec is not a mapping", name)
			}
		}

		img, err := NewImageFromSpec(name, merged)
		if err != nil {
			return nil, err
		}
		cat.images[name] = img
		cat.names[name] = struct{}{}
		cat.order = append(cat.order, name)
	}

	if err := cat.validateBaseReferences(); err != nil {
		return nil, err
	}

	return cat, nil
}

// validateBaseReferences checks that every base reference either names a
// catalog image, or is left to be resolved as an externally registered
// artifact at build time (not checkable here).
func (c *Catalog) validateBaseReferences() error {
	for _, name := range c.order {
		img := c.images[name]
		baseName, _ := img.BaseWithVersion()
		if baseName == "" {
			continue
		}
		// A base that is not a catalog image is assumed to name an
		// externally registered artifact; that is resolved lazily by the
		// Coordinator (spec.md §4.4), not validated at load time.
		_ = baseName
	}
	return nil
}

// Get looks up an image by name.
func (c *Catalog) Get(name string) (*Image, bool) {
	img, ok := c.images[name]
	return img, ok
}

// Has reports catalog membership.
func (c *Catalog) Has(name string) bool {
	_, ok := c.names[name]
	return ok
}

// Names returns image names in catalog (load) order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Images returns every Image in catalog order.
func (c *Catalog) Images() []*Image {
	out := make([]*Image, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.images[name])
	}
	return out
}

func (c *Catalog) String() string {
	return fmt.Sprintf("Catalog(%d images)", len(c.images))
}
