package build

import (
	"testing"

	"github.com/cobliteam/shelver/internal/catalog"
)

func TestRenderDocumentSubstitutesAndReparsesLiterals(t *testing.T) {
	engine := NewTextTemplateEngine()
	doc := map[string]any{
		"name":    "{{.name}}-image",
		"count":   "{{.count}}",
		"nested":  map[string]any{"flag": "{{.flag}}"},
		"literal": 5,
	}
	ctx := map[string]any{"name": "web", "count": 3, "flag": true}

	rendered, err := RenderDocument(engine, doc, ctx)
	if err != nil {
		t.Fatalf("RenderDocument returned error: %v", err)
	}
	out := rendered.(map[string]any)

	if out["name"] != "web-image" {
		t.Errorf("expected name to stay a string after substitution, got %v", out["name"])
	}
	if out["count"] != 3 {
		t.Errorf("expected count to reparse as an integer, got %v (%T)", out["count"], out["count"])
	}
	nested := out["nested"].(map[string]any)
	if nested["flag"] != true {
		t.Errorf("expected nested flag to reparse as a bool, got %v (%T)", nested["flag"], nested["flag"])
	}
	if out["literal"] != 5 {
		t.Errorf("expected non-string scalar to pass through unchanged, got %v", out["literal"])
	}
}

func TestRenderDocumentKeepsUnparsableStringAsIs(t *testing.T) {
	engine := NewTextTemplateEngine()
	rendered, err := RenderDocument(engine, "{{.value}}", map[string]any{"value": "not: [valid yaml"})
	if err != nil {
		t.Fatalf("RenderDocument returned error: %v", err)
	}
	if rendered != "not: [valid yaml" {
		t.Errorf("expected unparsable literal kept as string, got %v", rendered)
	}
}

func TestPostProcessTemplateRequiresBuilders(t *testing.T) {
	img := &catalog.Image{Name: "web"}
	_, err := PostProcessTemplate(map[string]any{}, img)
	if err == nil {
		t.Fatalf("expected error for a template missing a \"builders\" section")
	}
}

func TestPostProcessTemplateMergesBuilderOverrides(t *testing.T) {
	img := &catalog.Image{
		Name:             "web",
		BuilderOverrides: map[string]any{"instance_type": "t3.large"},
	}
	doc := map[string]any{
		"builders": []any{
			map[string]any{"type": "amazon-ebs", "instance_type": "t3.micro"},
		},
	}

	out, err := PostProcessTemplate(doc, img)
	if err != nil {
		t.Fatalf("PostProcessTemplate returned error: %v", err)
	}
	builders := out["builders"].([]any)
	b0 := builders[0].(map[string]any)
	if b0["instance_type"] != "t3.large" {
		t.Errorf("expected builder override to win, got %v", b0["instance_type"])
	}
	if b0["type"] != "amazon-ebs" {
		t.Errorf("expected unrelated builder fields preserved, got %v", b0["type"])
	}
}
