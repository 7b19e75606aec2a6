package registry

import (
	"context"
	"testing"

	"github.com/cobliteam/shelver/internal/artifact"
	"github.com/cobliteam/shelver/internal/catalog"
)

type fakeLoader struct {
	existing []*artifact.Artifact
	byID     map[string]*artifact.Artifact
}

func (f *fakeLoader) LoadExistingArtifacts(ctx context.Context, region string) ([]*artifact.Artifact, error) {
	return f.existing, nil
}

func (f *fakeLoader) LoadArtifactByID(ctx context.Context, id, region string) (*artifact.Artifact, error) {
	if a, ok := f.byID[id]; ok {
		return a, nil
	}
	return &artifact.Artifact{ID: id, ProviderTag: "fake"}, nil
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(`
base:
  version: "1.0.0"
web:
  version: "2.0.0"
  base: base
`))
	if err != nil {
		t.Fatalf("failed to build test catalog: %v", err)
	}
	return cat
}

func TestRegisterArtifactRejectsConflict(t *testing.T) {
	reg := New(testCatalog(t), &fakeLoader{byID: map[string]*artifact.Artifact{}})

	a1 := &artifact.Artifact{ID: "ami-1", Image: "web", Version: "2.0.0"}
	a2 := &artifact.Artifact{ID: "ami-2", Image: "web", Version: "2.0.0"}

	if err := reg.RegisterArtifact(a1); err != nil {
		t.Fatalf("unexpected error registering a1: %v", err)
	}
	if err := reg.RegisterArtifact(a1); err != nil {
		t.Errorf("expected re-registering identical artifact to be a no-op, got %v", err)
	}
	if err := reg.RegisterArtifact(a2); err == nil {
		t.Errorf("expected conflicting artifact under the same key to error")
	}
}

func TestAssociateArtifactAndLookup(t *testing.T) {
	reg := New(testCatalog(t), &fakeLoader{})
	img, err := reg.GetImage("web")
	if err != nil {
		t.Fatalf("GetImage returned error: %v", err)
	}

	a := &artifact.Artifact{ID: "ami-1", Image: "web", Version: "2.0.0"}
	if err := reg.AssociateArtifact(a, "web", "2.0.0"); err != nil {
		t.Fatalf("AssociateArtifact returned error: %v", err)
	}

	got, ok := reg.GetImageArtifact(img, "2.0.0")
	if !ok || got.ID != "ami-1" {
		t.Errorf("expected to find associated artifact, got %v, %v", got, ok)
	}

	conflict := &artifact.Artifact{ID: "ami-2", Image: "web", Version: "2.0.0"}
	if err := reg.AssociateArtifact(conflict, "web", "2.0.0"); err == nil {
		t.Errorf("expected conflicting association to error")
	}
}

func TestLoadArtifactByIDAssociatesManagedArtifact(t *testing.T) {
	reg := New(testCatalog(t), &fakeLoader{byID: map[string]*artifact.Artifact{}})

	a, err := reg.LoadArtifactByID(context.Background(), "ami-9", "", "web", "2.0.0")
	if err != nil {
		t.Fatalf("LoadArtifactByID returned error: %v", err)
	}
	if a.Image != "web" || a.Version != "2.0.0" {
		t.Fatalf("expected loaded artifact to be tagged with image/version, got %+v", a)
	}

	img, _ := reg.GetImage("web")
	got, ok := reg.GetImageArtifact(img, "2.0.0")
	if !ok || got.ID != "ami-9" {
		t.Errorf("expected LoadArtifactByID to associate the artifact, got %v, %v", got, ok)
	}
}

func TestGetUnknownImageAndArtifact(t *testing.T) {
	reg := New(testCatalog(t), &fakeLoader{})

	if _, err := reg.GetImage("missing"); err == nil {
		t.Errorf("expected error for unknown image")
	}
	if _, err := reg.GetArtifact("missing:1.0"); err == nil {
		t.Errorf("expected error for unknown artifact")
	}
}

func TestCheckCyclesDetectsCycleAcrossImages(t *testing.T) {
	cat, err := catalog.Parse([]byte(`
a:
  version: "1.0.0"
  base: b
b:
  version: "1.0.0"
  base: a
`))
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	reg := New(cat, &fakeLoader{})
	if _, err := reg.CheckCycles(); err == nil {
		t.Errorf("expected CheckCycles to detect the a<->b cycle")
	}
}

func TestCheckCyclesIgnoresExternalBaseReferences(t *testing.T) {
	cat, err := catalog.Parse([]byte(`
web:
  version: "1.0.0"
  base: some-external-ami
`))
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	reg := New(cat, &fakeLoader{})
	levels, err := reg.CheckCycles()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 1 || len(levels[0]) != 1 {
		t.Errorf("expected a single level with web alone, got %v", levels)
	}
}
