package catalog

import "testing"

func TestParseBuildsImagesAndAppliesDefaults(t *testing.T) {
	doc := []byte(`
defaults:
  environment: staging
  provision:
    timeout: 3600

web:
  version: "1.2.3"
  template: templates/web.pkr.yaml
  archive:
    type: git
    dir: /src/web

db:
  version: "4.5.6"
  environment: production
  template: templates/db.pkr.yaml
  base: web
`)

	cat, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if len(cat.Names()) != 2 {
		t.Fatalf("expected 2 images, got %d: %v", len(cat.Names()), cat.Names())
	}

	web, ok := cat.Get("web")
	if !ok {
		t.Fatalf("expected image %q present", "web")
	}
	if web.Environment != "staging" {
		t.Errorf("expected web to inherit defaults.environment=staging, got %q", web.Environment)
	}

	db, ok := cat.Get("db")
	if !ok {
		t.Fatalf("expected image %q present", "db")
	}
	if db.Environment != "production" {
		t.Errorf("expected db's own environment to win over defaults, got %q", db.Environment)
	}
	baseName, _ := db.BaseWithVersion()
	if baseName != "web" {
		t.Errorf("expected db's base to be %q, got %q", "web", baseName)
	}
}

func TestParseRejectsNonMappingImageSpec(t *testing.T) {
	doc := []byte(`
web: "not a mapping"
`)
	if _, err := Parse(doc); err == nil {
		t.Fatalf("expected error for non-mapping image spec")
	}
}

func TestParseIgnoresReservedKeys(t *testing.T) {
	doc := []byte(`
provider:
  tag: test
coordinator:
  max_builds: 2
web:
  version: "1.0.0"
`)
	cat, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cat.Has("provider") || cat.Has("coordinator") {
		t.Errorf("expected reserved keys not to be treated as image names: %v", cat.Names())
	}
	if !cat.Has("web") {
		t.Errorf("expected image %q present", "web")
	}
}
