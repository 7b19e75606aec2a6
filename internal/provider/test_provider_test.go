package provider

import (
	"context"
	"testing"

	"github.com/cobliteam/shelver/internal/artifact"
)

func TestTestLoaderSeedAndLoadExisting(t *testing.T) {
	loader := NewTestLoader()
	seeded := &artifact.Artifact{ID: "ami-1", Image: "web", Version: "1.0.0"}
	loader.Seed(seeded)

	got, err := loader.LoadExistingArtifacts(context.Background(), "")
	if err != nil {
		t.Fatalf("LoadExistingArtifacts returned error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ami-1" {
		t.Errorf("expected seeded artifact to be returned, got %v", got)
	}
}

func TestTestLoaderLoadArtifactByIDIsIdempotent(t *testing.T) {
	loader := NewTestLoader()

	a1, err := loader.LoadArtifactByID(context.Background(), "ami-1", "")
	if err != nil {
		t.Fatalf("LoadArtifactByID returned error: %v", err)
	}
	a2, err := loader.LoadArtifactByID(context.Background(), "ami-1", "")
	if err != nil {
		t.Fatalf("LoadArtifactByID returned error: %v", err)
	}
	if a1 != a2 {
		t.Errorf("expected loading the same ID twice to return the same artifact")
	}
}

func TestTestLoaderGeneratesIDWhenEmpty(t *testing.T) {
	loader := NewTestLoader()

	a, err := loader.LoadArtifactByID(context.Background(), "", "")
	if err != nil {
		t.Fatalf("LoadArtifactByID returned error: %v", err)
	}
	if a.ID == "" {
		t.Errorf("expected a generated ID, got empty string")
	}
}

func TestProviderRegistryLooksUpByName(t *testing.T) {
	loader, err := New("test", nil)
	if err != nil {
		t.Fatalf("New(test) returned error: %v", err)
	}
	if loader == nil {
		t.Fatalf("expected a non-nil test provider")
	}

	if _, err := New("does-not-exist", nil); err == nil {
		t.Errorf("expected an error for an unregistered provider name")
	}
}
