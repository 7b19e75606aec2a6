package build

import (
	"bytes"
	"text/template"

	"github.com/cobliteam/shelver/internal/catalog"
	"github.com/cobliteam/shelver/internal/shelvererr"
	"go.yaml.in/yaml/v3"
)

// TemplateEngine renders one placeholder-bearing string leaf against a
// context. It is the external "template engine" collaborator spec.md §1
// scopes out of the core; RenderDocument below is the core logic that
// walks a document and invokes it per leaf.
type TemplateEngine interface {
	Render(raw string, context map[string]any) (string, error)
}

// textTemplateEngine is the default TemplateEngine, backed by the
// standard library's text/template with Go-style {{.field}} placeholders.
type textTemplateEngine struct{}

func NewTextTemplateEngine() TemplateEngine {
	return textTemplateEngine{}
}

func (textTemplateEngine) Render(raw string, context map[string]any) (string, error) {
	tmpl, err := template.New("leaf").Option("missingkey=zero").Parse(raw)
	if err != nil {
		return raw, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, context); err != nil {
		return raw, err
	}
	return buf.String(), nil
}

// RenderDocument walks doc and, for every string leaf, substitutes
// placeholders via engine and then attempts to parse the substituted
// string as a YAML literal (an integer, a mapping, a sequence, etc); on
// parse failure the substituted string is kept as-is. Mapping and
// sequence nodes recurse; non-string scalars pass through unchanged, per
// spec.md §4.3 step 3.
func RenderDocument(engine TemplateEngine, doc any, context map[string]any) (any, error) {
	switch v := doc.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			rendered, err := RenderDocument(engine, val, context)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil

	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			rendered, err := RenderDocument(engine, val, context)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil

	case string:
		substituted, err := engine.Render(v, context)
		if err != nil {
			return nil, err
		}
		return reparseLiteral(substituted), nil

	default:
		return v, nil
	}
}

// reparseLiteral attempts to interpret s as a YAML scalar/collection
// literal; on failure it is kept as a plain string.
func reparseLiteral(s string) any {
	var parsed any
	if err := yaml.Unmarshal([]byte(s), &parsed); err != nil {
		return s
	}
	if parsed == nil {
		return s
	}
	return normalizeYAMLValue(parsed)
}

// normalizeYAMLValue converts yaml.v3's map[string]interface{} (actually
// decoded as map[string]any for string-keyed mappings already, but
// nested sequences may decode as []interface{}) into the plain
// map[string]any / []any shapes RenderDocument expects.
func normalizeYAMLValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAMLValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAMLValue(val)
		}
		return out
	default:
		return t
	}
}

// PostProcessTemplate enforces spec.md §4.3 step 4: the top-level
// document must contain a "builders" sequence, each entry of which is
// deep-merged with the image's builder overrides.
func PostProcessTemplate(doc map[string]any, img *catalog.Image) (map[string]any, error) {
	rawBuilders, ok := doc["builders"]
	if !ok {
		return nil, shelvererr.NewConfigurationError("template for image %q is missing a \"builders\" section", img.Name)
	}
	builders, ok := rawBuilders.([]any)
	if !ok {
		return nil, shelvererr.NewConfigurationError("template for image %q: \"builders\" is not a sequence", img.Name)
	}

	if len(img.BuilderOverrides) > 0 {
		merged := make([]any, len(builders))
		for i, b := range builders {
			bm, ok := b.(map[string]any)
			if !ok {
				return nil, shelvererr.NewConfigurationError("template for image %q: builders[%d] is not a mapping", img.Name, i)
			}
			m, err := catalog.Merge(bm, map[string]any(img.BuilderOverrides))
			if err != nil {
				return nil, shelvererr.NewConfigurationError("template for image %q: merging builder overrides: %v", img.Name, err)
			}
			merged[i] = m
		}
		builders = merged
	}

	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	out["builders"] = builders
	return out, nil
}
