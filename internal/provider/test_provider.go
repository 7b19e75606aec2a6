package provider

import (
	"context"
	"sync"

	"github.com/cobliteam/shelver/internal/artifact"
	"github.com/google/uuid"
)

// testLoader is an in-memory Loader with no external dependency,
// grounded on original_source's shelver/provider/test.py, the fixture
// the original project's own test suite built its Registry tests on. It
// is registered as "test" and doubles as the default/local provider so
// the core is exercisable without cloud credentials.
type testLoader struct {
	mu        sync.Mutex
	seeded    []*artifact.Artifact
	byID      map[string]*artifact.Artifact
}

func init() {
	Register("test", func(config map[string]any) (Loader, error) {
		return NewTestLoader(), nil
	})
}

func NewTestLoader() *testLoader {
	return &testLoader{byID: map[string]*artifact.Artifact{}}
}

// Seed pre-populates the loader with artifacts LoadExistingArtifacts will
// return, as if they had been discovered from a real provider catalog at
// startup.
func (t *testLoader) Seed(a *artifact.Artifact) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seeded = append(t.seeded, a)
	t.byID[a.ID] = a
}

func (t *testLoader) LoadExistingArtifacts(ctx context.Context, region string) ([]*artifact.Artifact, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*artifact.Artifact, len(t.seeded))
	copy(out, t.seeded)
	return out, nil
}

// LoadArtifactByID registers a fresh artifact with the given provider ID
// if one isn't already known, standing in for a real provider's "fetch
// by ID" call (e.g. describing a freshly built AMI).
func (t *testLoader) LoadArtifactByID(ctx context.Context, id, region string) (*artifact.Artifact, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a, ok := t.byID[id]; ok {
		return a, nil
	}
	if id == "" {
		id = uuid.NewString()
	}
	a := &artifact.Artifact{ID: id, ProviderTag: "test"}
	t.byID[id] = a
	return a, nil
}
